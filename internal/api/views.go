package api

import (
	"github.com/local/partkit/internal/artifact"
	"github.com/local/partkit/internal/segment"
	"github.com/local/partkit/internal/session"
)

type segmentView struct {
	ID        segment.SegmentID `json:"id"`
	Index     int               `json:"index"`
	Label     string            `json:"label"`
	Pages     []int             `json:"pages"`
	StartPage int               `json:"start_page"`
	EndPage   int               `json:"end_page"`
	PageCount int               `json:"page_count"`
	Range     string            `json:"range"`
	Filename  string            `json:"filename,omitempty"`
	Size      int               `json:"size"`
	Stale     bool              `json:"stale"`
	Error     string            `json:"error,omitempty"`
}

type sessionView struct {
	ID          string        `json:"id"`
	Source      string        `json:"source"`
	PageCount   int           `json:"page_count"`
	BaseName    string        `json:"base_name"`
	ArchiveName string        `json:"archive_name"`
	Segments    []segmentView `json:"segments"`
}

type editResponse struct {
	Changed            bool            `json:"changed"`
	Change             *segment.Change `json:"change,omitempty"`
	Session            sessionView     `json:"session"`
	RegenerationErrors []string        `json:"regeneration_errors"`
}

func viewSnapshot(snap *session.Snapshot) sessionView {
	v := sessionView{
		ID:          snap.SessionID,
		Source:      snap.Source,
		PageCount:   snap.PageCount,
		BaseName:    snap.BaseName,
		ArchiveName: snap.ArchiveName,
		Segments:    make([]segmentView, len(snap.Entries)),
	}
	for i, e := range snap.Entries {
		seg := e.Segment
		sv := segmentView{
			ID:        seg.ID,
			Index:     i,
			Label:     seg.Label,
			Pages:     seg.Pages,
			StartPage: seg.StartPage(),
			EndPage:   seg.EndPage(),
			PageCount: seg.PageCount(),
			Range:     seg.RangeLabel(),
			Stale:     e.Artifact.Stale(),
		}
		if a := e.Artifact; a != nil {
			sv.Filename = a.Filename
			sv.Size = len(a.Bytes)
			if a.Err != nil {
				sv.Error = a.Err.Error()
			}
		}
		v.Segments[i] = sv
	}
	return v
}

func errorStrings(errs []*artifact.RegenerationError) []string {
	if len(errs) == 0 {
		return []string{}
	}
	return artifact.ErrorList(errs)
}
