package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ehsgw/gateway"
	"github.com/ehsgw/gateway/frame"
	"github.com/ehsgw/gateway/framer"
	"github.com/ehsgw/gateway/quality"
	"github.com/ehsgw/gateway/repo"
	"github.com/sirupsen/logrus"
)

// dumpTransport replays a fixed byte buffer and discards writes, letting
// -dry-run drive the framer from a recorded trace instead of a live
// bus.
type dumpTransport struct {
	r *bytes.Reader
}

func (d *dumpTransport) Read(p []byte) (int, error)  { return d.r.Read(p) }
func (d *dumpTransport) Write(p []byte) (int, error) { return len(p), nil }
func (d *dumpTransport) Close() error                { return nil }

// runDryRun decodes every frame in path against the configured
// repository and prints the resulting values to stdout, without opening
// the bus or the pub/sub client.
func runDryRun(log *logrus.Entry, cfg *ehsgw.Config, path string) error {
	if path == "" {
		return fmt.Errorf("ehsgw: -dry-run requires -dump")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	r, err := repo.Load(cfg.RepositoryPath)
	if err != nil {
		return err
	}

	mon := quality.New(log, nil)
	xport := &dumpTransport{r: bytes.NewReader(data)}
	f := framer.New(xport, mon, log)

	done := make(chan struct{})
	go f.Run(done)

	for candidate := range f.Frames {
		fr, err := frame.Parse(candidate)
		if err != nil && fr == nil {
			continue
		}
		for _, msg := range fr.Messages {
			entry, ok := r.ByAddress(msg.Address)
			if !ok {
				continue
			}
			v, err := frame.DecodeValue(msg, entry)
			if err != nil {
				fmt.Fprintf(os.Stdout, "%s: decode error: %v\n", entry.Name, err)
				continue
			}
			printValue(entry.Name, v)
		}
	}

	snap := mon.Snapshot()
	fmt.Fprintf(os.Stdout, "total=%d invalid=%d\n", snap.TotalPackets, snap.InvalidPackets)
	return nil
}

func printValue(name string, v frame.Value) {
	switch {
	case v.EnumMiss:
		fmt.Fprintf(os.Stdout, "%s = <unmapped %d>\n", name, v.Raw)
	case v.Numeric:
		fmt.Fprintf(os.Stdout, "%s = %g\n", name, v.Num)
	default:
		fmt.Fprintf(os.Stdout, "%s = %s\n", name, v.Str)
	}
}
