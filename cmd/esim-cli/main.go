package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

var rpcEndpoint = defaultRPCEndpoint() // overridden via ESIM_RPC_URL or --rpc
var rpcAuthToken = os.Getenv("ESIM_RPC_TOKEN")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage())
		return 1
	}

	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "token":
		return runToken(args[1:], stdout, stderr)
	case "call":
		return runCall(args[1:], stdout, stderr)
	case "status":
		return runCall([]string{"node_status"}, stdout, stderr)
	case "details":
		if len(args) < 2 {
			fmt.Fprintln(stderr, "Error: please provide an asset id.")
			return 1
		}
		return runCall([]string{"esim_getDetails", fmt.Sprintf(`{"assetId":%s}`, args[1])}, stdout, stderr)
	case "export":
		return runExport(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("ESIM_RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--rpc":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
		case strings.HasPrefix(arg, "--rpc="):
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
		default:
			out = append(out, arg)
		}
	}
	return out, nil
}

func usage() string {
	return strings.TrimSpace(`
Usage: esim-cli [--rpc URL] <command> [args]

Commands:
  keygen [--out FILE]                       generate an account key into an encrypted keystore
  address --keystore FILE                   print the account address of a keystore
  token --account ADDR [--ttl 1h]           sign an RPC bearer token with ESIM_JWT_SECRET
  call <method> [json-params]               invoke a JSON-RPC method and print the result
  status                                    show node height, state root and paused modules
  details <assetId>                         show an asset with its benefits, proof and listing
  export --format csv|jsonl|parquet --out FILE [--from N] [--limit N]
                                            export marketplace sales history

Environment:
  ESIM_RPC_URL     node endpoint (default http://localhost:8080)
  ESIM_RPC_TOKEN   bearer token attached to every call
  ESIM_KEY_PASS    keystore passphrase (prompted when unset)
  ESIM_JWT_SECRET  HMAC secret used by the token command`)
}
