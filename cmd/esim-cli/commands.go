package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"esimchain/cmd/internal/passphrase"
	"esimchain/crypto"
)

const keyPassEnv = "ESIM_KEY_PASS"

var keyPassphrase = func() (string, error) {
	return passphrase.NewSource(keyPassEnv).WithPrompt("Enter keystore passphrase: ").Get()
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	out := fs.String("out", "account.keystore", "keystore output path")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := os.Stat(*out); err == nil {
		fmt.Fprintf(stderr, "Error: %s already exists; refusing to overwrite\n", *out)
		return 1
	}
	pass, err := keyPassphrase()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error: generate key: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		fmt.Fprintf(stderr, "Error: save keystore: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Generated new key and saved to %s\n", *out)
	fmt.Fprintf(stdout, "Account address: %s\n", key.PubKey().Address().String())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	path := fs.String("keystore", "account.keystore", "keystore path")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	pass, err := keyPassphrase()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.LoadFromKeystore(*path, pass)
	if err != nil {
		fmt.Fprintf(stderr, "Error: unable to decrypt keystore %s: %v\n", *path, err)
		return 1
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return 0
}

// runToken signs a bearer token for operators who hold the node's HMAC
// secret.
func runToken(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("token", stderr)
	account := fs.String("account", "", "account address carried as the token subject")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	issuer := fs.String("issuer", "", "optional issuer claim")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := crypto.ParseAccount(*account); err != nil {
		fmt.Fprintf(stderr, "Error: invalid --account: %v\n", err)
		return 1
	}
	secret := strings.TrimSpace(os.Getenv("ESIM_JWT_SECRET"))
	if secret == "" {
		fmt.Fprintln(stderr, "Error: ESIM_JWT_SECRET must be set")
		return 1
	}
	if *ttl <= 0 {
		fmt.Fprintln(stderr, "Error: --ttl must be positive")
		return 1
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   *account,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
	}
	if *issuer != "" {
		claims.Issuer = *issuer
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		fmt.Fprintf(stderr, "Error: sign token: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, signed)
	return 0
}

func runCall(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Error: please provide a method name.")
		return 1
	}
	var params interface{}
	if len(args) > 1 {
		raw := json.RawMessage(args[1])
		if !json.Valid(raw) {
			fmt.Fprintln(stderr, "Error: params must be a JSON object")
			return 1
		}
		params = raw
	}
	result, err := callRPC(args[0], params)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	printJSON(stdout, result)
	return 0
}
