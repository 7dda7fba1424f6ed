package main

import (
	"fmt"
	"os"

	"github.com/ledgerbft/go-ledgerbft/pbft"
	gen "github.com/whyrusleeping/cbor-gen"
)

func main() {
	err := gen.WriteTupleEncodersToFile("./pbft/gen.go", "pbft",
		pbft.PrePrepare{},
		pbft.Prepare{},
		pbft.Commit{},
		pbft.ViewChange{},
		pbft.NewView{},
		pbft.SignedMessage{},
		pbft.CommitCertificate{},
	)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
