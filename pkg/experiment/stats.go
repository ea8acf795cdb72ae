package experiment

import (
	"encoding/csv"
	"os"
	"strconv"
)

var statsHeader = []string{"Iteration", "Loss", "Steps", "Episodes", "TotalReward", "DurationMs"}

type statsWriter struct {
	f *os.File
	w *csv.Writer
}

func newStatsWriter(path string) (*statsWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if err := w.Write(statsHeader); err != nil {
		f.Close()
		return nil, err
	}
	return &statsWriter{f: f, w: w}, nil
}

func (s *statsWriter) Write(stats IterationStats) error {
	if err := s.w.Write([]string{
		strconv.Itoa(stats.Iteration),
		strconv.FormatFloat(stats.Loss, 'f', 6, 64),
		strconv.Itoa(stats.Steps),
		strconv.Itoa(stats.Episodes),
		strconv.FormatFloat(stats.TotalReward, 'f', 2, 64),
		strconv.FormatInt(stats.Duration.Milliseconds(), 10),
	}); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *statsWriter) Close() error {
	s.w.Flush()
	return s.f.Close()
}
