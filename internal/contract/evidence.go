package contract

import (
	"os"
	"time"

	"github.com/boshu2/identityctl/internal/locator"
)

// EvidenceRequirement names one contract's evidence-file glob pattern and
// its freshness bound, per spec §4.3 point 4: "for contracts referencing
// evidence files (*_path_pattern), at least one file must match and
// satisfy its per-record schema; evidence freshness: timestamps <= now and
// within max_log_age_days".
type EvidenceRequirement struct {
	Contract       string
	Root           string
	Pattern        string
	MaxLogAgeDays  int
}

// CheckEvidence resolves each requirement's glob under Root, failing if no
// file matches or if the latest match is stale or timestamped in the
// future relative to now.
func CheckEvidence(r *Report, reqs []EvidenceRequirement, now time.Time) {
	for _, req := range reqs {
		path, ok := locator.Latest(req.Root, req.Pattern)
		if !ok {
			r.Add(req.Contract, "evidence_report_path_pattern", "no file matched pattern %q under %s", req.Pattern, req.Root)
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			r.Add(req.Contract, "evidence_report_path_pattern", "cannot stat %s: %v", path, err)
			continue
		}

		if info.ModTime().After(now) {
			r.Add(req.Contract, "evidence_report_path_pattern", "evidence %s is timestamped in the future", path)
			continue
		}

		if req.MaxLogAgeDays > 0 {
			age := now.Sub(info.ModTime())
			maxAge := time.Duration(req.MaxLogAgeDays) * 24 * time.Hour
			if age > maxAge {
				r.Add(req.Contract, "evidence_report_path_pattern", "evidence %s is %s old, exceeds max_log_age_days=%d", path, age.Round(time.Hour), req.MaxLogAgeDays)
			}
		}
	}
}
