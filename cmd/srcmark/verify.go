package main

import (
	"fmt"

	"github.com/FocuswithJustin/srcmark/core/cas"
	"github.com/FocuswithJustin/srcmark/core/codec"
	"github.com/FocuswithJustin/srcmark/core/errors"
)

// VerifyCmd checks that every unit decodes to the bytes its hash records.
type VerifyCmd struct {
	Archive string `arg:"" help:"Archive path, - for stdin"`
}

func (c *VerifyCmd) Run() error {
	a, err := openArchive(c.Archive)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Archive: %s\n", c.Archive)
	fmt.Fprintf(stdout, "  Units: %d\n", a.Len())

	failed := 0
	for i, u := range a.Iterate() {
		data, err := codec.Decode(u)
		switch {
		case err != nil:
			fmt.Fprintf(stdout, "  [FAIL] %d %s: %v\n", i+1, u.Filename, err)
			failed++
		case u.Hash == "":
			fmt.Fprintf(stdout, "  [SKIP] %d %s: no hash recorded\n", i+1, u.Filename)
		case !cas.IsValidHash(u.Hash):
			fmt.Fprintf(stdout, "  [FAIL] %d %s: malformed hash %q\n", i+1, u.Filename, u.Hash)
			failed++
		case cas.Hash(data) != u.Hash:
			fmt.Fprintf(stdout, "  [FAIL] %d %s: hash mismatch\n", i+1, u.Filename)
			failed++
		default:
			fmt.Fprintf(stdout, "  [OK] %d %s (%d bytes)\n", i+1, u.Filename, len(data))
		}
	}
	if failed > 0 {
		return errors.NewValidation("archive", fmt.Sprintf("%d of %d units failed verification", failed, a.Len()))
	}
	return nil
}
