package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/mailreader/internal/model"
	"github.com/nhle/mailreader/internal/render"
	"github.com/nhle/mailreader/internal/source/email"
)

// fetchFlags are shared by every command that returns messages.
type fetchFlags struct {
	folder        string
	limit         int
	noBody        bool
	noHeaders     bool
	noAttachments bool
	raw           bool
}

func (f *fetchFlags) register(cmd *cobra.Command, withLimit bool) {
	cmd.Flags().StringVar(&f.folder, "folder", "", "folder (default from config)")
	if withLimit {
		cmd.Flags().IntVar(&f.limit, "limit", -1, "keep the last N messages (0 = all)")
	}
	cmd.Flags().BoolVar(&f.noBody, "no-body", false, "skip body parsing")
	cmd.Flags().BoolVar(&f.noHeaders, "no-headers", false, "omit the header map")
	cmd.Flags().BoolVar(&f.noAttachments, "no-attachments", false, "omit attachments")
}

func (f *fetchFlags) options(cfg *model.AppConfig) model.FetchOptions {
	opts := cfg.Fetch.FetchOptions
	if f.noBody {
		opts.IncludeBody = false
	}
	if f.noHeaders {
		opts.IncludeHeaders = false
	}
	if f.noAttachments {
		opts.IncludeAttachments = false
	}
	opts.Raw = f.raw
	return opts
}

func (f *fetchFlags) folderName(cfg *model.AppConfig) string {
	if f.folder != "" {
		return f.folder
	}
	return cfg.Fetch.Folder
}

func (f *fetchFlags) limitValue(cfg *model.AppConfig) int {
	if f.limit >= 0 {
		return f.limit
	}
	return cfg.Fetch.Limit
}

func newFetchCmd(env *Env) *cobra.Command {
	var flags fetchFlags
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Print the most recent messages as JSON Lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := env.reader()
			if err != nil {
				return err
			}
			opts := flags.options(env.Config)
			folder := flags.folderName(env.Config)
			limit := flags.limitValue(env.Config)

			if opts.Raw {
				handles, err := r.FetchRaw(cmd.Context(), folder, opts, limit)
				if err != nil {
					return err
				}
				return writeRaw(env, handles)
			}

			messages, err := r.Fetch(cmd.Context(), folder, opts, limit)
			if err != nil {
				return err
			}
			return writeJSONLines(env, messages)
		},
	}
	flags.register(cmd, true)
	cmd.Flags().BoolVar(&flags.raw, "raw", false, "print raw RFC 5322 bytes instead of records")
	return cmd
}

func newSearchCmd(env *Env) *cobra.Command {
	var (
		flags    fetchFlags
		criteria model.SearchCriteria
		since    string
		before   string
		rSince   string
		rBefore  string
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Print messages matching all given predicates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if criteria.SentSince, err = parseDate(since); err != nil {
				return err
			}
			if criteria.SentBefore, err = parseDate(before); err != nil {
				return err
			}
			if criteria.ReceivedSince, err = parseDate(rSince); err != nil {
				return err
			}
			if criteria.ReceivedBefore, err = parseDate(rBefore); err != nil {
				return err
			}

			r, err := env.reader()
			if err != nil {
				return err
			}
			messages, err := r.Search(
				cmd.Context(),
				flags.folderName(env.Config),
				criteria,
				flags.options(env.Config),
				flags.limitValue(env.Config),
			)
			if err != nil {
				return err
			}
			return writeJSONLines(env, messages)
		},
	}
	flags.register(cmd, true)

	f := cmd.Flags()
	f.StringVar(&criteria.SubjectContains, "subject", "", "subject contains")
	f.StringVar(&criteria.FromContains, "from", "", "From contains")
	f.StringVar(&criteria.ToContains, "to", "", "To contains")
	f.StringVar(&criteria.CcContains, "cc", "", "Cc contains")
	f.StringVar(&criteria.BodyContains, "body", "", "body contains")
	f.StringVar(&criteria.MessageID, "message-id", "", "Message-ID equals")
	f.BoolVar(&criteria.Unseen, "unseen", false, "only unseen messages")
	f.BoolVar(&criteria.Seen, "seen", false, "only seen messages")
	f.BoolVar(&criteria.Answered, "answered", false, "only answered messages")
	f.BoolVar(&criteria.Flagged, "flagged", false, "only flagged messages")
	f.StringVar(&since, "sent-since", "", "sent on or after (YYYY-MM-DD)")
	f.StringVar(&before, "sent-before", "", "sent before (YYYY-MM-DD)")
	f.StringVar(&rSince, "since", "", "received on or after (YYYY-MM-DD)")
	f.StringVar(&rBefore, "before", "", "received before (YYYY-MM-DD)")
	return cmd
}

func newShowCmd(env *Env) *cobra.Command {
	var flags fetchFlags
	cmd := &cobra.Command{
		Use:   "show UID",
		Short: "Print one message in human-readable form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseUID(args[0])
			if err != nil {
				return err
			}
			r, err := env.reader()
			if err != nil {
				return err
			}
			msg, err := r.GetByUID(cmd.Context(), flags.folderName(env.Config), uid, flags.options(env.Config))
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(env.Out, render.Message(*msg))
			return err
		},
	}
	flags.register(cmd, false)
	return cmd
}

func newUIDsCmd(env *Env) *cobra.Command {
	var flags fetchFlags
	cmd := &cobra.Command{
		Use:   "uids START [END]",
		Short: "Print messages in a UID range (END defaults to the newest)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseUID(args[0])
			if err != nil {
				return err
			}
			var end uint32
			if len(args) == 2 && args[1] != "*" {
				if end, err = parseUID(args[1]); err != nil {
					return err
				}
			}
			r, err := env.reader()
			if err != nil {
				return err
			}
			messages, err := r.GetByUIDRange(cmd.Context(), flags.folderName(env.Config), start, end, flags.options(env.Config))
			if err != nil {
				return err
			}
			return writeJSONLines(env, messages)
		},
	}
	flags.register(cmd, false)
	return cmd
}

func newFoldersCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "folders",
		Short: "List folders with message and unseen counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := env.reader()
			if err != nil {
				return err
			}
			folders, err := r.Folders(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(env.Out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FOLDER\tMESSAGES\tUNSEEN")
			for _, f := range folders {
				fmt.Fprintf(tw, "%s\t%d\t%d\n", f.Name, f.Messages, f.Unseen)
			}
			return tw.Flush()
		},
	}
}

func writeJSONLines(env *Env, messages []model.Message) error {
	enc := json.NewEncoder(env.Out)
	for _, m := range messages {
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("encoding message %d: %w", m.SeqNum, err)
		}
	}
	return nil
}

type rawRecord struct {
	SeqNum uint32  `json:"seq_num"`
	UID    *uint32 `json:"uid"`
	Raw    string  `json:"raw"`
}

func writeRaw(env *Env, handles []email.MessageHandle) error {
	enc := json.NewEncoder(env.Out)
	for _, h := range handles {
		rec := rawRecord{SeqNum: h.SeqNum(), Raw: string(h.Raw())}
		if uid, err := h.UID(); err == nil && uid != 0 {
			rec.UID = &uid
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encoding message %d: %w", rec.SeqNum, err)
		}
	}
	return nil
}

func parseUID(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid uid %q", s)
	}
	return uint32(n), nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}
