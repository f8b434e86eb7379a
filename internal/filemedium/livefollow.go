package filemedium

import (
	"github.com/nxadm/tail"
	"github.com/sirupsen/logrus"

	"ssw-trace-core/internal/bterr"
)

// GrowthFollower tails a trace producer's growth-notification sidecar
// (one text line per flushed packet boundary: the new file size in
// bytes) so a live, still-being-written stream file can be re-mmap'd
// without polling stat() in a tight loop. Unlike the CTF data itself,
// this sidecar is plain text, which is exactly the shape nxadm/tail is
// built for.
type GrowthFollower struct {
	tailer *tail.Tail
	Sizes  chan int64
}

// FollowGrowth starts tailing sidecarPath from its end, emitting the
// parsed size on Sizes for every new line.
func FollowGrowth(sidecarPath string, logger *logrus.Entry) (*GrowthFollower, error) {
	t, err := tail.TailFile(sidecarPath, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     true,
		Location: &tail.SeekInfo{Whence: 2},
	})
	if err != nil {
		return nil, bterr.Wrap(err, bterr.KindIO, bterr.ActorUnknown, "filemedium", "follow_growth", sidecarPath)
	}

	gf := &GrowthFollower{tailer: t, Sizes: make(chan int64, 16)}
	go gf.loop(logger)
	return gf, nil
}

func (gf *GrowthFollower) loop(logger *logrus.Entry) {
	for line := range gf.tailer.Lines {
		if line.Err != nil {
			logger.WithError(line.Err).Warn("growth sidecar tail error")
			continue
		}
		size, err := parseSizeLine(line.Text)
		if err != nil {
			logger.WithField("line", line.Text).Warn("unparseable growth sidecar line")
			continue
		}
		gf.Sizes <- size
	}
}

func parseSizeLine(s string) (int64, error) {
	var n int64
	for _, r := range s {
		if r < '0' || r > '9' {
			if n == 0 {
				continue
			}
			break
		}
		n = n*10 + int64(r-'0')
	}
	if n == 0 && s != "0" {
		return 0, bterr.New(bterr.KindDecodeMalformed, bterr.ActorUnknown, "filemedium", "parse_size_line", s)
	}
	return n, nil
}

// Stop ends the tail follower.
func (gf *GrowthFollower) Stop() error {
	return gf.tailer.Stop()
}
