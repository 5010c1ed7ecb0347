package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aristath/gitbridge/internal/events"
	"github.com/aristath/gitbridge/internal/task"
)

func newDownloadCmd(opts *rootOptions) *cobra.Command {
	var (
		digest string
		quiet  bool
	)
	cmd := &cobra.Command{
		Use:   "download <url> <dest>",
		Short: "Download a file with retries and an optional checksum",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}
			a := newApp(cmd.Context(), opts.cfg, opts.logger(), true)
			defer a.close()

			if !quiet {
				progress := a.bus.Subscribe(events.TopicDownload, 16)
				go reportProgress(cmd.ErrOrStderr(), progress)
			}

			dl := a.downloader.New(a.manager, args[0], dest, task.WithBlocking()).WithSHA256(digest)
			if err := await(dl); err != nil {
				return fmt.Errorf("download %s after %d attempt(s): %w", args[0], dl.Attempts(), err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), dl.Result())
			return nil
		},
	}
	cmd.Flags().StringVar(&digest, "sha256", "", "expected SHA-256 of the file, hex encoded")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not report progress")
	return cmd
}

// reportProgress prints download progress until the bus closes the channel.
func reportProgress(w io.Writer, sub <-chan events.Event) {
	for ev := range sub {
		p, ok := ev.(events.DownloadProgressEvent)
		if !ok {
			continue
		}
		if p.Total > 0 {
			fmt.Fprintf(w, "\r%s: %d%%", p.URL, p.Written*100/p.Total)
		} else {
			fmt.Fprintf(w, "\r%s: %d bytes", p.URL, p.Written)
		}
	}
	fmt.Fprintln(w)
}
