package syncer

import (
	"net/url"
	"sort"
	"time"

	"github.com/five82/torsh/internal/state"
	"github.com/five82/torsh/internal/transmission"
)

// mapStatus folds the daemon's status and error codes into a dashboard
// status. Tracker warnings keep the activity status; only tracker errors and
// local errors become StatusError.
func mapStatus(code, errCode int) state.Status {
	if errCode == transmission.ErrorTrackerError || errCode == transmission.ErrorLocal {
		return state.StatusError
	}
	switch code {
	case transmission.StatusStopped:
		return state.StatusPaused
	case transmission.StatusChecking:
		return state.StatusChecking
	case transmission.StatusDownloading:
		return state.StatusDownloading
	case transmission.StatusSeeding:
		return state.StatusSeeding
	default:
		// check-wait, download-wait and seed-wait
		return state.StatusQueued
	}
}

func mapPriority(wanted bool, p int) state.Priority {
	if !wanted {
		return state.PrioritySkip
	}
	switch {
	case p <= transmission.PriorityLow:
		return state.PriorityLow
	case p >= transmission.PriorityHigh:
		return state.PriorityHigh
	default:
		return state.PriorityNormal
	}
}

func toRecord(t transmission.Torrent) state.TorrentRecord {
	rec := state.TorrentRecord{
		ID:              t.ID,
		Hash:            t.HashString,
		Name:            t.Name,
		Status:          mapStatus(t.Status, t.Error),
		Progress:        clamp01(t.PercentDone),
		RateDown:        t.RateDownload,
		RateUp:          t.RateUpload,
		Size:            t.SizeWhenDone,
		Left:            t.LeftUntilDone,
		ETA:             -1,
		Ratio:           t.UploadRatio,
		DownloadDir:     t.DownloadDir,
		Peers:           t.PeersConnected,
		PeersSending:    t.PeersSendingToUs,
		PeersGetting:    t.PeersGettingFromUs,
		DownloadLimit:   t.DownloadLimit,
		DownloadLimited: t.DownloadLimited,
		UploadLimit:     t.UploadLimit,
		UploadLimited:   t.UploadLimited,
	}
	if rec.Size == 0 {
		rec.Size = t.TotalSize
	}
	if t.ETA >= 0 {
		rec.ETA = time.Duration(t.ETA) * time.Second
	}
	if t.AddedDate > 0 {
		rec.AddedAt = time.Unix(t.AddedDate, 0)
	}
	if t.DoneDate > 0 {
		rec.DoneAt = time.Unix(t.DoneDate, 0)
	}
	if t.Error != transmission.ErrorNone {
		rec.ErrorMessage = t.ErrorString
	}

	if len(t.Files) > 0 {
		rec.Files = make([]state.FileRecord, len(t.Files))
		for i, f := range t.Files {
			done := f.BytesCompleted
			wanted, prio := true, transmission.PriorityNormal
			if i < len(t.FileStats) {
				done = t.FileStats[i].BytesCompleted
				wanted = t.FileStats[i].Wanted
				prio = t.FileStats[i].Priority
			}
			completed := 1.0
			if f.Length > 0 {
				completed = clamp01(float64(done) / float64(f.Length))
			}
			rec.Files[i] = state.FileRecord{
				Index:     i,
				Path:      f.Name,
				Size:      f.Length,
				Completed: completed,
				Priority:  mapPriority(wanted, prio),
			}
		}
	}

	if len(t.TrackerStats) > 0 {
		rec.Trackers = make([]state.TrackerRecord, len(t.TrackerStats))
		for i, tr := range t.TrackerStats {
			host := tr.Host
			if host == "" {
				if u, err := url.Parse(tr.Announce); err == nil {
					host = u.Hostname()
				}
			}
			rec.Trackers[i] = state.TrackerRecord{
				Announce:              tr.Announce,
				Host:                  host,
				LastAnnounceResult:    tr.LastAnnounceResult,
				LastAnnounceSucceeded: tr.LastAnnounceSucceeded,
				LastAnnouncePeerCount: tr.LastAnnouncePeerCount,
				Seeders:               tr.SeederCount,
				Leechers:              tr.LeecherCount,
			}
		}
	}
	return rec
}

func toRecords(ts []transmission.Torrent) []state.TorrentRecord {
	out := make([]state.TorrentRecord, len(ts))
	for i, t := range ts {
		out[i] = toRecord(t)
	}
	return out
}

// merge applies a recently-active delta to the previous records. The result
// is a new slice; prev is not modified.
func merge(prev, changed []state.TorrentRecord, removed []int64) []state.TorrentRecord {
	skip := make(map[int64]struct{}, len(changed)+len(removed))
	for _, id := range removed {
		skip[id] = struct{}{}
	}
	for _, r := range changed {
		skip[r.ID] = struct{}{}
	}

	out := make([]state.TorrentRecord, 0, len(prev)+len(changed))
	for _, r := range prev {
		if _, ok := skip[r.ID]; !ok {
			out = append(out, r)
		}
	}
	gone := make(map[int64]struct{}, len(removed))
	for _, id := range removed {
		gone[id] = struct{}{}
	}
	for _, r := range changed {
		if _, ok := gone[r.ID]; !ok {
			out = append(out, r)
		}
	}
	sortByID(out)
	return out
}

func sortByID(records []state.TorrentRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
}

func aggregate(records []state.TorrentRecord, stats transmission.SessionStats, free int64) state.Stats {
	out := state.Stats{
		RateDown:  stats.DownloadSpeed,
		RateUp:    stats.UploadSpeed,
		Total:     len(records),
		FreeSpace: free,
	}
	for _, r := range records {
		if r.Active() {
			out.Active++
		}
		if r.Status == state.StatusPaused {
			out.Paused++
		}
	}
	return out
}

func toSessionInfo(info transmission.SessionInfo) state.SessionInfo {
	return state.SessionInfo{
		Version:               info.Version,
		RPCVersion:            info.RPCVersion,
		DownloadDir:           info.DownloadDir,
		SpeedLimitDown:        info.SpeedLimitDown,
		SpeedLimitDownEnabled: info.SpeedLimitDownEnabled,
		SpeedLimitUp:          info.SpeedLimitUp,
		SpeedLimitUpEnabled:   info.SpeedLimitUpEnabled,
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
