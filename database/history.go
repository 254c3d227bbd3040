package database

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"shufflegen/logger"
	"shufflegen/types"
)

// Play-history store layout: a header of songCount (int32 LE) plus 4
// reserved bytes, then one 32-byte record per track in track-table order.
const (
	HistoryFileName  = "iTunesStats"
	historyHeaderLen = 8
	historyRecordLen = 32
)

// History maps device paths to their carried-forward play/skip statistics.
type History map[string]types.HistoryRecord

// LoadHistory reads the pre-existing history store, joining the positional
// records of the stats file with the paths of the previous index file. Any
// shape of missing or unusable prior state yields an empty History: losing
// history must never block a regeneration.
func LoadHistory(databaseDir string) History {
	history := History{}

	paths, err := ReadIndexPaths(filepath.Join(databaseDir, IndexFileName))
	if err != nil {
		logger.Warn("previous track index unreadable, play history starts fresh",
			logger.ErrorField(err))
		return history
	}
	if len(paths) == 0 {
		return history
	}

	statsPath := filepath.Join(databaseDir, HistoryFileName)
	data, err := os.ReadFile(statsPath)
	if os.IsNotExist(err) {
		return history
	}
	if err != nil {
		logger.Warn("previous history store unreadable, play history starts fresh",
			logger.String("path", statsPath), logger.ErrorField(err))
		return history
	}

	if len(data) < historyHeaderLen {
		logger.Warn("previous history store truncated, play history starts fresh",
			logger.String("path", statsPath))
		return history
	}
	count := int(int32(binary.LittleEndian.Uint32(data[0:4])))
	if count < 0 || count > len(paths) {
		count = len(paths)
	}

	for i := 0; i < count; i++ {
		rec := historyHeaderLen + i*historyRecordLen
		if rec+historyRecordLen > len(data) {
			break
		}
		r := data[rec : rec+historyRecordLen]
		if int32(binary.LittleEndian.Uint32(r[0:4])) != historyRecordLen {
			// Unknown record shape: stop rather than misattribute counts.
			logger.Warn("history record with unexpected length, remaining records ignored",
				logger.Int("index", i))
			break
		}
		history[paths[i]] = types.HistoryRecord{
			BookmarkTime: int32(binary.LittleEndian.Uint32(r[4:8])),
			PlayCount:    int32(binary.LittleEndian.Uint32(r[8:12])),
			LastPlayed:   int32(binary.LittleEndian.Uint32(r[12:16])),
			SkipCount:    int32(binary.LittleEndian.Uint32(r[16:20])),
			LastSkipped:  int32(binary.LittleEndian.Uint32(r[20:24])),
		}
	}
	return history
}

// BuildHistoryFile serializes the history store for the given device paths in
// track-table order. Paths present in prior keep their statistics; new
// tracks get all-zero records.
func BuildHistoryFile(devicePaths []string, prior History) []byte {
	var b leBuffer
	b.u32(uint32(len(devicePaths)))
	b.zeros(4)

	for _, p := range devicePaths {
		rec := prior[p] // zero value for new tracks
		b.u32(historyRecordLen)
		b.u32(uint32(rec.BookmarkTime))
		b.u32(uint32(rec.PlayCount))
		b.u32(uint32(rec.LastPlayed))
		b.u32(uint32(rec.SkipCount))
		b.u32(uint32(rec.LastSkipped))
		b.zeros(8)
	}
	return b.Bytes()
}

// parseHistoryFile re-parses a serialized history file into records. Used by
// tests to check round-trip behavior.
func parseHistoryFile(data []byte) ([]types.HistoryRecord, error) {
	if len(data) < historyHeaderLen {
		return nil, fmt.Errorf("history file too short: %d bytes", len(data))
	}
	count := int(int32(binary.LittleEndian.Uint32(data[0:4])))
	want := historyHeaderLen + count*historyRecordLen
	if len(data) != want {
		return nil, fmt.Errorf("history file length %d, want %d for %d records", len(data), want, count)
	}
	records := make([]types.HistoryRecord, 0, count)
	rd := bytes.NewReader(data[historyHeaderLen:])
	for i := 0; i < count; i++ {
		var raw [8]int32
		if err := binary.Read(rd, binary.LittleEndian, &raw); err != nil {
			return nil, err
		}
		records = append(records, types.HistoryRecord{
			BookmarkTime: raw[1],
			PlayCount:    raw[2],
			LastPlayed:   raw[3],
			SkipCount:    raw[4],
			LastSkipped:  raw[5],
		})
	}
	return records, nil
}
