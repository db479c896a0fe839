package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seekdata/seekbot/internal/acquire"
	"github.com/seekdata/seekbot/internal/importer"
	"github.com/seekdata/seekbot/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import <path-or-url>",
	Short: "Load an archive of CSV files into the record store",
	Long:  "Downloads or reads the given archive, extracts its CSV files, and loads them into the record store, replacing previously loaded data.",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := importer.NewService(st, importer.Options{
		StagingDir:      cfg.Import.StagingDir,
		WorkDir:         cfg.Import.WorkDir,
		ClearWorkDir:    cfg.Import.ClearWorkDir,
		ChunkRows:       cfg.Import.ChunkRows,
		BatchSize:       cfg.Import.BatchSize,
		Timeout:         cfg.Import.Timeout,
		MaxDownloadSize: cfg.Import.MaxDownloadSize,
	})

	req, cleanup, err := buildRequest(args[0])
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink := acquire.SinkFunc(func(percent int) {
		fmt.Printf("downloading... %d%%\n", percent)
	})

	summary, err := svc.Run(ctx, req, sink)
	if err != nil {
		return fmt.Errorf("%s", importer.Describe(err))
	}

	fmt.Println(importer.DescribeSuccess(summary))
	return nil
}

// buildRequest treats an existing local path as an upload and anything
// else as a URL.
func buildRequest(source string) (importer.Request, func(), error) {
	info, err := os.Stat(source)
	if err != nil || info.IsDir() {
		return importer.Request{URL: source}, func() {}, nil
	}

	f, err := os.Open(source)
	if err != nil {
		return importer.Request{}, nil, fmt.Errorf("opening %s: %w", source, err)
	}
	req := importer.Request{
		Upload: f,
		Name:   filepath.Base(source),
		Size:   info.Size(),
	}
	return req, func() { f.Close() }, nil
}
