// Command remotecall is the CLI wrapper for issuing one remote call
// against a running broker: <program> <object> <method> [param-json].
//
// Called by: operators / shell scripts.
// Calls: public/client, value.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/LorenzoLeonardo/remote-call/public/client"
	"github.com/LorenzoLeonardo/remote-call/value"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: remotecall <object> <method> [param-json]")
		os.Exit(1)
	}

	object := os.Args[1]
	method := os.Args[2]

	param := value.Null()
	if len(os.Args) > 3 {
		p, err := value.FromBytes([]byte(os.Args[3]))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid param JSON: %v\n", err)
			os.Exit(1)
		}
		param = p
	}

	conn, err := client.Connect(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	result, err := conn.RemoteCall(object, method, param)
	if err != nil {
		var remoteErr *client.RemoteError
		if errors.As(err, &remoteErr) {
			fmt.Printf("Error: %s\n", remoteErr.Payload)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Success: %s\n", result)
}
