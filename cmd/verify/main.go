// verify checks pieces served by a fileproof server against a merkle root the
// caller already trusts. With -file it checks a local copy, otherwise it
// downloads the file piece by piece and writes only verified bytes.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	fileproof "github.com/i5heu/ouroboros-fileproof"
	"github.com/i5heu/ouroboros-fileproof/apiServer"
	"github.com/i5heu/ouroboros-fileproof/pkg/chunker"
)

var errRejected = errors.New("verification failed")

func main() {
	server := flag.String("server", "http://localhost:4242", "fileproof server")
	root := flag.String("root", "", "trusted merkle root")
	index := flag.Int64("index", -1, "single piece to check, -1 checks all")
	localFile := flag.String("file", "", "local copy to check instead of downloading")
	out := flag.String("out", "", "write the downloaded file here, default stdout")
	timeout := flag.Duration("timeout", time.Minute, "overall timeout")
	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stderr)

	if *root == "" {
		log.Fatal("-root is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := apiServer.NewClient(*server, nil)

	var err error
	if *localFile != "" {
		err = checkLocal(ctx, log, client, *root, *index, *localFile)
	} else {
		err = download(ctx, log, client, *root, *index, *out)
	}
	if err != nil {
		log.WithError(err).Error("verify failed")
		os.Exit(1)
	}
}

func checkLocal(ctx context.Context, log *logrus.Logger, client *apiServer.Client, root string, index int64, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	pieces, err := chunker.ChunkReader(f)
	if err != nil {
		return err
	}

	first, last := int64(0), int64(len(pieces))-1
	if index >= 0 {
		first, last = index, index
	}
	if last >= int64(len(pieces)) {
		return errors.New("local file has fewer pieces than requested")
	}

	failed := 0
	for i := first; i <= last; i++ {
		proof, err := client.GetProof(ctx, root, i)
		if err != nil {
			return err
		}
		if int(proof.Pieces) != len(pieces) {
			log.WithFields(logrus.Fields{"local": len(pieces), "remote": proof.Pieces}).Warn("piece count differs")
		}

		if !fileproof.VerifyPiece(root, i, pieces[i], proof) {
			failed++
			log.WithField("piece", i).Error("piece does not verify")
			continue
		}
		log.WithField("piece", i).Debug("piece verified")
	}

	if failed > 0 {
		return errRejected
	}
	log.WithField("pieces", last-first+1).Info("all pieces verified")
	return nil
}

func download(ctx context.Context, log *logrus.Logger, client *apiServer.Client, root string, index int64, out string) error {
	var w io.Writer = os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	first, last := index, index
	if index < 0 {
		proof, err := client.GetProof(ctx, root, 0)
		if err != nil {
			return err
		}
		first, last = 0, int64(proof.Pieces)-1
	}

	var written uint64
	for i := first; i <= last; i++ {
		piece, err := client.FetchVerifiedPiece(ctx, root, i)
		if err != nil {
			return err
		}
		n, err := w.Write(piece)
		if err != nil {
			return err
		}
		written += uint64(n)
	}

	log.WithFields(logrus.Fields{
		"pieces": last - first + 1,
		"size":   humanize.Bytes(written),
	}).Info("download verified")
	return nil
}
