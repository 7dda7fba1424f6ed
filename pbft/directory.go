package pbft

import (
	"bytes"
	"errors"
	"fmt"
)

// Validator is a member of the validator set.
type Validator struct {
	Address Address
	PubKey  PubKey
}

// ValidatorDirectory maps validator addresses to dense replica ids in the
// order the validators were given. It is immutable once built; a validator set
// change replaces the directory wholesale.
type ValidatorDirectory struct {
	validators []Validator
	lookup     map[Address]ReplicaID
}

// NewValidatorDirectory builds a directory from an ordered validator list.
func NewValidatorDirectory(validators []Validator) (*ValidatorDirectory, error) {
	if len(validators) == 0 {
		return nil, errors.New("validator set cannot be empty")
	}
	d := &ValidatorDirectory{
		validators: make([]Validator, len(validators)),
		lookup:     make(map[Address]ReplicaID, len(validators)),
	}
	for i, v := range validators {
		if len(v.PubKey) == 0 {
			return nil, fmt.Errorf("validator %s has no public key", v.Address)
		}
		if _, dup := d.lookup[v.Address]; dup {
			return nil, fmt.Errorf("duplicate validator address %s", v.Address)
		}
		d.validators[i] = Validator{Address: v.Address, PubKey: bytes.Clone(v.PubKey)}
		d.lookup[v.Address] = ReplicaID(i)
	}
	return d, nil
}

// Size returns the number of validators.
func (d *ValidatorDirectory) Size() int {
	if d == nil {
		return 0
	}
	return len(d.validators)
}

// ReplicaID returns the replica id of the validator with the given address.
func (d *ValidatorDirectory) ReplicaID(addr Address) (ReplicaID, bool) {
	if d == nil {
		return -1, false
	}
	id, found := d.lookup[addr]
	return id, found
}

// Get returns the validator with the given replica id.
func (d *ValidatorDirectory) Get(id ReplicaID) (Validator, bool) {
	if d == nil || id < 0 || int(id) >= len(d.validators) {
		return Validator{}, false
	}
	return d.validators[id], true
}

func (d *ValidatorDirectory) Has(id ReplicaID) bool {
	_, found := d.Get(id)
	return found
}

// Primary returns the replica id of the primary for the given view.
func (d *ValidatorDirectory) Primary(view int64) ReplicaID {
	n := int64(d.Size())
	if n == 0 {
		return -1
	}
	p := view % n
	if p < 0 {
		p += n
	}
	return ReplicaID(p)
}

// Changed reports whether other differs from d in size or in the replica id
// assigned to any address. Order alone does not count unless it changes an id.
func (d *ValidatorDirectory) Changed(other *ValidatorDirectory) bool {
	if d.Size() != other.Size() {
		return true
	}
	for addr, id := range d.lookup {
		if otherID, found := other.lookup[addr]; !found || otherID != id {
			return true
		}
		if !bytes.Equal(d.validators[id].PubKey, other.validators[id].PubKey) {
			return true
		}
	}
	return false
}

// Validators returns a copy of the ordered validator list.
func (d *ValidatorDirectory) Validators() []Validator {
	if d == nil {
		return nil
	}
	out := make([]Validator, len(d.validators))
	for i, v := range d.validators {
		out[i] = Validator{Address: v.Address, PubKey: bytes.Clone(v.PubKey)}
	}
	return out
}
