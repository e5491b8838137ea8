package results

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/iRazvan2745/Storm/internal/coordinator/model"
	"github.com/iRazvan2745/Storm/internal/coordinator/storage"
	"github.com/iRazvan2745/Storm/internal/storerr"
)

// recordKey identifies one DailyDowntimeRecord.
type recordKey struct {
	AgentID  string
	TargetID int
	Date     string // YYYY-MM-DD, local
}

// store owns the on-disk three-level document
// agentId -> targetId -> date -> DailyDowntimeRecord (spec.md §6) and
// the in-memory index used by the engine. All mutation happens under
// the engine's writer lock; store itself adds no locking of its own.
type store struct {
	path    string
	logger  *log.Logger
	records map[recordKey]*model.DailyDowntimeRecord
}

func newStore(path string, logger *log.Logger) *store {
	return &store{
		path:    path,
		logger:  logger,
		records: make(map[recordKey]*model.DailyDowntimeRecord),
	}
}

// fileDocument mirrors the on-disk shape exactly:
// { agentId: { targetId: { date: DailyDowntimeRecord } } }
type fileDocument map[string]map[string]map[string]fileRecord

type fileRecord struct {
	Date                  string                     `json:"date"`
	DowntimeMs            int64                      `json:"downtimeMs"`
	Incidents             []fileIncident             `json:"incidents"`
	ResponseTimeIntervals []fileResponseTimeInterval `json:"responseTimeIntervals"`
	IsDown                bool                       `json:"isDown"`
}

type fileIncident struct {
	StartTime string  `json:"startTime"`
	EndTime   *string `json:"endTime"`
}

type fileResponseTimeInterval struct {
	StartTime       string  `json:"startTime"`
	EndTime         string  `json:"endTime"`
	AvgResponseTime float64 `json:"avgResponseTime"`
	Count           int     `json:"count"`
}

const timeLayout = time.RFC3339Nano

func (s *store) load() error {
	var doc fileDocument
	if err := storage.ReadJSON(s.path, &doc); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return storerr.IOFailure(err, "read results store %q", s.path)
	}

	for agentID, byTarget := range doc {
		for targetIDStr, byDate := range byTarget {
			targetID, err := strconv.Atoi(targetIDStr)
			if err != nil {
				s.logger.Printf("warning: skipping malformed target id %q in results store", targetIDStr)
				continue
			}
			for date, fr := range byDate {
				rec, err := fromFileRecord(fr)
				if err != nil {
					s.logger.Printf("warning: skipping malformed record %s/%s/%s: %v", agentID, targetIDStr, date, err)
					continue
				}
				s.records[recordKey{AgentID: agentID, TargetID: targetID, Date: date}] = rec
			}
		}
	}
	return nil
}

func (s *store) persist() error {
	doc := fileDocument{}
	for key, rec := range s.records {
		byTarget, ok := doc[key.AgentID]
		if !ok {
			byTarget = make(map[string]map[string]fileRecord)
			doc[key.AgentID] = byTarget
		}
		targetKey := strconv.Itoa(key.TargetID)
		byDate, ok := byTarget[targetKey]
		if !ok {
			byDate = make(map[string]fileRecord)
			byTarget[targetKey] = byDate
		}
		byDate[key.Date] = toFileRecord(rec)
	}
	if err := storage.WriteJSONAtomic(s.path, doc); err != nil {
		return storerr.IOFailure(err, "persist results store %q", s.path)
	}
	return nil
}

func toFileRecord(rec *model.DailyDowntimeRecord) fileRecord {
	fr := fileRecord{
		Date:       rec.Date,
		DowntimeMs: rec.DowntimeMs,
		IsDown:     rec.IsDown,
	}
	for _, inc := range rec.Incidents {
		fi := fileIncident{StartTime: inc.StartTime.Format(timeLayout)}
		if inc.EndTime != nil {
			end := inc.EndTime.Format(timeLayout)
			fi.EndTime = &end
		}
		fr.Incidents = append(fr.Incidents, fi)
	}
	for _, b := range rec.ResponseTimeIntervals {
		fr.ResponseTimeIntervals = append(fr.ResponseTimeIntervals, fileResponseTimeInterval{
			StartTime:       b.StartTime.Format(timeLayout),
			EndTime:         b.EndTime.Format(timeLayout),
			AvgResponseTime: b.AvgResponseTime,
			Count:           b.Count,
		})
	}
	return fr
}

func fromFileRecord(fr fileRecord) (*model.DailyDowntimeRecord, error) {
	rec := &model.DailyDowntimeRecord{
		Date:       fr.Date,
		DowntimeMs: fr.DowntimeMs,
		IsDown:     fr.IsDown,
	}
	for _, fi := range fr.Incidents {
		start, err := time.Parse(timeLayout, fi.StartTime)
		if err != nil {
			return nil, fmt.Errorf("parse incident start: %w", err)
		}
		inc := model.Incident{StartTime: start}
		if fi.EndTime != nil {
			end, err := time.Parse(timeLayout, *fi.EndTime)
			if err != nil {
				return nil, fmt.Errorf("parse incident end: %w", err)
			}
			inc.EndTime = &end
		}
		rec.Incidents = append(rec.Incidents, inc)
	}
	for _, fb := range fr.ResponseTimeIntervals {
		start, err := time.Parse(timeLayout, fb.StartTime)
		if err != nil {
			return nil, fmt.Errorf("parse bucket start: %w", err)
		}
		end, err := time.Parse(timeLayout, fb.EndTime)
		if err != nil {
			return nil, fmt.Errorf("parse bucket end: %w", err)
		}
		rec.ResponseTimeIntervals = append(rec.ResponseTimeIntervals, model.ResponseTimeBucket{
			StartTime:       start,
			EndTime:         end,
			AvgResponseTime: fb.AvgResponseTime,
			Count:           fb.Count,
		})
	}
	if rec.OpenIncident() != nil {
		rec.State = model.StateDown
	} else {
		rec.State = model.StateUp
	}
	return rec, nil
}
