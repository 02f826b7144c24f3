// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/certasset/cmd/certasset/cli"
	"github.com/bureau-foundation/certasset/lib/asset"
	"github.com/bureau-foundation/certasset/lib/assetclient"
	"github.com/bureau-foundation/certasset/lib/certtree"
)

type verifyFlags struct {
	storeFlags
	host               string
	acceptEncoding     string
	certificateVersion uint16
	publicKey          string
	fallbackKey        string
}

func verifyCommand() *cli.Command {
	var flags verifyFlags
	return &cli.Command{
		Name:    "verify",
		Summary: "Fetch a response from the store and check its certification",
		Description: `Send a GET request for a path to the store's HTTP responder, fetch the
complete body, and check the response against its certificate: the
signature, the witness against the certified root, and the body (and
for version 2 the status code and certified headers) against the tree.

Exits with status 1 when the response is not certified.`,
		Usage: "certasset verify <path> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVar(&flags.host, "host", "localhost", "Host header of the request")
			flagSet.StringVar(&flags.acceptEncoding, "accept-encoding", "", "Accept-Encoding header of the request")
			flagSet.Uint16Var(&flags.certificateVersion, "certificate-version", 2, "certification scheme to request (1 or 2)")
			flagSet.StringVar(&flags.publicKey, "public-key", "", "hex Ed25519 key the certificate must be signed by (default: the key it carries)")
			flagSet.StringVar(&flags.fallbackKey, "fallback-key", "", "fallback asset key, needed for version 1 fallback responses")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Verify the gzip encoding of a stylesheet",
				Command:     "certasset verify /style.css --accept-encoding gzip",
			},
		},
		Args: cli.ExactArgs(1),
		Run: func(args []string) error {
			_, client, _, err := flags.open()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			return runVerify(ctx, client, flags, args[0], os.Stdout)
		},
	}
}

func runVerify(ctx context.Context, client *assetclient.Client, flags verifyFlags, requestPath string, w io.Writer) error {
	if flags.certificateVersion != 1 && flags.certificateVersion != 2 {
		return fmt.Errorf("--certificate-version must be 1 or 2, got %d", flags.certificateVersion)
	}
	var trusted ed25519.PublicKey
	if flags.publicKey != "" {
		key, err := certtree.ParsePublicKey(flags.publicKey)
		if err != nil {
			return err
		}
		trusted = key
	}
	if !strings.HasPrefix(requestPath, "/") {
		requestPath = "/" + requestPath
	}

	request := asset.HTTPRequest{
		Method:             "GET",
		URL:                requestPath,
		Headers:            []asset.HeaderField{{Name: "Host", Value: flags.host}},
		CertificateVersion: &flags.certificateVersion,
	}
	if flags.acceptEncoding != "" {
		request.Headers = append(request.Headers, asset.HeaderField{Name: "Accept-Encoding", Value: flags.acceptEncoding})
	}

	response, err := client.HTTPRequest(ctx, request)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", requestPath, err)
	}
	body, err := client.FetchBody(ctx, response)
	if err != nil {
		return fmt.Errorf("fetching body of %s: %w", requestPath, err)
	}

	fmt.Fprintf(w, "status:  %d\n", response.StatusCode)
	if encoding, ok := response.Header("Content-Encoding"); ok {
		fmt.Fprintf(w, "encoding: %s\n", encoding)
	}
	fmt.Fprintf(w, "length:  %d\n", len(body))

	verified, err := certtree.VerifyResponse(requestPath, response, body, certtree.VerifyOptions{
		TrustedKey:  trusted,
		FallbackKey: flags.fallbackKey,
	})
	if err != nil {
		fmt.Fprintf(w, "NOT VERIFIED: %v\n", err)
		return &cli.ExitError{Code: 1}
	}
	fmt.Fprintf(w, "version: %d\n", verified.Version)
	fmt.Fprintf(w, "root:    %s\n", verified.Root)
	fmt.Fprintf(w, "path:    %s\n", strings.Join(verified.Path, " / "))
	if verified.Fallback {
		fmt.Fprintln(w, "verified (fallback)")
	} else {
		fmt.Fprintln(w, "verified")
	}
	return nil
}
