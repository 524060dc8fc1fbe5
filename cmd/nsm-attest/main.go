package main

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/mdlayher/vsock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veilware/nsm"
	"github.com/veilware/nsm/attestation"
)

var (
	devicePath string
	userData   string
	nonce      string
	outPath    string
	servePort  uint32
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nsm-attest",
		Short: "Fetch, serve and inspect NSM attestation documents",
	}
	rootCmd.PersistentFlags().StringVar(&devicePath, "device", nsm.DevicePath, "path to the NSM device file")

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch one attestation document and write it to a file",
		RunE:  runFetch,
	}
	fetchCmd.Flags().StringVar(&outPath, "out", "attestation.cose", "file to write the document to")
	fetchCmd.Flags().StringVar(&userData, "user-data", "", "opaque data to bind into the document")
	fetchCmd.Flags().StringVar(&nonce, "nonce", "", "nonce to bind into the document")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve attestation documents to the parent instance over vsock",
		RunE:  runServe,
	}
	serveCmd.Flags().Uint32Var(&servePort, "port", 9000, "vsock port to listen on")
	serveCmd.Flags().StringVar(&userData, "user-data", "", "opaque data to bind into each document")

	inspectCmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Parse an attestation document file and dump its contents",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}

	rootCmd.AddCommand(fetchCmd, serveCmd, inspectCmd)

	err := rootCmd.Execute()
	if err != nil {
		fmt.Println("error: " + err.Error())
		os.Exit(1)
	}
}

func optionalBytes(s string) []byte {
	if s == "" {
		return nil
	}

	return []byte(s)
}

func runFetch(cmd *cobra.Command, args []string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}

	sess, err := nsm.OpenSession(nsm.Options{Path: devicePath, Logger: logger})
	if err != nil {
		return err
	}
	defer sess.Close()

	doc, err := sess.Attest(nsm.AttestationOptions{
		UserData: optionalBytes(userData),
		Nonce:    optionalBytes(nonce),
	})
	if err != nil {
		return err
	}

	err = os.WriteFile(outPath, doc, 0644)
	if err != nil {
		return err
	}

	logger.Info("attestation document written",
		zap.String("path", outPath),
		zap.Int("size", len(doc)))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}

	sess, err := nsm.OpenSession(nsm.Options{Path: devicePath, Logger: logger})
	if err != nil {
		return err
	}
	defer sess.Close()

	listener, err := vsock.Listen(servePort, nil)
	if err != nil {
		return err
	}

	logger.Info("attestation listener ready", zap.String("address", listener.Addr().String()))

	eg, _ := errgroup.WithContext(context.Background())
	eg.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return err
			}

			eg.Go(func() error {
				serveConn(logger, sess, conn)
				return nil
			})
		}
	})

	return eg.Wait()
}

// serveConn hands one freshly-signed document to the peer. Each connection
// gets its own document so callers always observe current PCR values.
func serveConn(logger *zap.Logger, sess *nsm.Session, conn net.Conn) {
	defer conn.Close()

	doc, err := sess.Attest(nsm.AttestationOptions{
		UserData: optionalBytes(userData),
	})
	if err != nil {
		logger.Error("attestation failed", zap.Error(err))
		return
	}

	_, err = conn.Write(doc)
	if err != nil {
		logger.Error("writing attestation document failed", zap.Error(err))
		return
	}

	logger.Info("attestation document served",
		zap.String("peer", conn.RemoteAddr().String()),
		zap.Int("size", len(doc)))
}

func runInspect(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	signed, err := attestation.ParseSigned(raw)
	if err != nil {
		return err
	}

	doc, err := signed.Document()
	if err != nil {
		return err
	}

	spew.Dump(doc)
	return nil
}
