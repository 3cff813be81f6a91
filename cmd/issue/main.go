package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"pvcli/internal/license"
	"pvcli/internal/security"
)

func main() {
	kind := flag.String("type", "trial", "license type to issue")
	expires := flag.String("expires", "", "expiration date (YYYY-MM-DD), required")
	label := flag.String("label", "", "boundary label (defaults to the standard label)")
	keyFile := flag.String("key", "", "path to the private key PEM, required")
	passphraseEnv := flag.String("passphrase-env", "PVCLI_KEY_PASSPHRASE", "environment variable holding the private key passphrase")
	outFile := flag.String("out", "", "write the license here instead of stdout")
	flag.Parse()

	if *expires == "" || *keyFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	expiresAt, err := time.Parse("2006-01-02", *expires)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: -expires must be a date in YYYY-MM-DD form: %v\n", err)
		os.Exit(2)
	}

	keys := security.NewKeyring(&security.FileKeySource{PrivateKeyPath: *keyFile})
	if passphrase := os.Getenv(*passphraseEnv); passphrase != "" {
		keys.SetPassphrase([]byte(passphrase))
	}

	codec := license.NewCodec(keys)
	record := license.NewRecord(map[string]any{
		license.AttrType:      *kind,
		license.AttrExpiresAt: expiresAt,
	}, codec.Schema())

	text, err := codec.Export(context.Background(), record, *label)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to issue license: %v\n", err)
		os.Exit(1)
	}

	if *outFile == "" {
		fmt.Print(text)
		return
	}
	if err := os.WriteFile(*outFile, []byte(text), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to write %s: %v\n", *outFile, err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "License written to %s\n", *outFile)
}
