package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// SyncReport summarizes one upload or transcript run
type SyncReport struct {
	GeneratedAt time.Time
	Duration    time.Duration

	Uploaded           int
	Skipped            int
	UploadFailed       int
	TranscriptsFetched int
	TranscriptsPending int
	TotalRegistered    int

	// PerTarget counts successful uploads per target name
	PerTarget map[string]int

	BytesUploaded int64
	Errors        []ItemError
}

// CleanReport summarizes one clean run
type CleanReport struct {
	GeneratedAt time.Time
	DryRun      bool

	Deleted    int
	Skipped    int
	Eligible   []string // paths that would be deleted under --dry-run
	BytesFreed int64
	Errors     []ItemError
}

// ItemError is one per-file failure collected during a run
type ItemError struct {
	File string
	Err  string
}

// AddError appends a per-file failure to the sync report
func (r *SyncReport) AddError(file string, err error) {
	r.Errors = append(r.Errors, ItemError{File: file, Err: err.Error()})
}

// AddError appends a per-file failure to the clean report
func (r *CleanReport) AddError(file string, err error) {
	r.Errors = append(r.Errors, ItemError{File: file, Err: err.Error()})
}

// Markdown renders the sync report as a markdown summary
func (r *SyncReport) Markdown() string {
	var md strings.Builder

	md.WriteString("# Sync Summary\n\n")
	fmt.Fprintf(&md, "**Generated:** %s\n\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))

	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	fmt.Fprintf(&md, "| Uploaded | %d |\n", r.Uploaded)
	fmt.Fprintf(&md, "| Skipped | %d |\n", r.Skipped)
	if r.UploadFailed > 0 {
		fmt.Fprintf(&md, "| Upload failures | %d |\n", r.UploadFailed)
	}
	if r.TranscriptsFetched > 0 || r.TranscriptsPending > 0 {
		fmt.Fprintf(&md, "| Transcripts fetched | %d |\n", r.TranscriptsFetched)
		fmt.Fprintf(&md, "| Transcripts pending | %d |\n", r.TranscriptsPending)
	}
	fmt.Fprintf(&md, "| Total registered | %d |\n", r.TotalRegistered)
	if r.BytesUploaded > 0 {
		fmt.Fprintf(&md, "| Data uploaded | %s |\n", humanize.Bytes(uint64(r.BytesUploaded)))
	}
	if r.Duration > 0 {
		fmt.Fprintf(&md, "| Duration | %s |\n", r.Duration.Round(time.Second))
	}
	md.WriteString("\n")

	if len(r.PerTarget) > 0 {
		md.WriteString("## Per Target\n\n")
		md.WriteString("| Target | Uploaded |\n")
		md.WriteString("|--------|----------|\n")
		names := make([]string, 0, len(r.PerTarget))
		for name := range r.PerTarget {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&md, "| %s | %d |\n", name, r.PerTarget[name])
		}
		md.WriteString("\n")
	}

	writeErrors(&md, r.Errors)
	return md.String()
}

// Markdown renders the clean report as a markdown summary
func (r *CleanReport) Markdown() string {
	var md strings.Builder

	md.WriteString("# Clean Summary\n\n")
	fmt.Fprintf(&md, "**Generated:** %s\n\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	if r.DryRun {
		md.WriteString("**Dry run** — nothing was deleted.\n\n")
	}

	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	fmt.Fprintf(&md, "| Deleted | %d |\n", r.Deleted)
	fmt.Fprintf(&md, "| Skipped (not yet durable) | %d |\n", r.Skipped)
	if r.BytesFreed > 0 {
		fmt.Fprintf(&md, "| Space freed | %s |\n", humanize.Bytes(uint64(r.BytesFreed)))
	}
	md.WriteString("\n")

	if r.DryRun && len(r.Eligible) > 0 {
		md.WriteString("## Would Delete\n\n")
		for _, path := range r.Eligible {
			fmt.Fprintf(&md, "- `%s`\n", path)
		}
		md.WriteString("\n")
	}

	writeErrors(&md, r.Errors)
	return md.String()
}

func writeErrors(md *strings.Builder, errs []ItemError) {
	if len(errs) == 0 {
		return
	}
	md.WriteString("## Errors\n\n")
	md.WriteString("| File | Error |\n")
	md.WriteString("|------|-------|\n")
	for _, e := range errs {
		fmt.Fprintf(md, "| `%s` | %s |\n", e.File, e.Err)
	}
	md.WriteString("\n")
}
