package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/himanishpuri/acousticprint/internal/config"
	"github.com/himanishpuri/acousticprint/internal/fingerprint"
	"github.com/himanishpuri/acousticprint/internal/service"
	"github.com/himanishpuri/acousticprint/pkg/utils"
)

func handleIndex(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	youtube := fs.String("youtube", "", "YouTube URL to download and index")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *youtube == "" && fs.NArg() == 0 {
		return errors.New("usage: acousticprint index <file|dir>... | --youtube <url>")
	}
	if *youtube != "" && !utils.IsYouTubeURL(*youtube) {
		return fmt.Errorf("not a YouTube URL: %s", *youtube)
	}

	svc, err := createService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if *youtube != "" {
		fmt.Println("📥 Downloading audio from YouTube...")
		res, err := svc.IndexYouTube(ctx, *youtube)
		if errors.Is(err, service.ErrDuplicateTrack) {
			if res != nil && res.Track != nil {
				fmt.Printf("⏭️  Already indexed as %s\n", res.Track.ID)
			}
			return nil
		}
		if err != nil {
			return err
		}
		printIndexed(res)
		return nil
	}

	files, err := utils.WalkAudioFiles(fs.Args()...)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("📭 No audio files found")
		return nil
	}
	fmt.Printf("🎵 Indexing %s file(s)\n\n", humanize.Comma(int64(len(files))))

	start := time.Now()
	bar := newProgress(ctx, len(files))
	report, err := svc.IndexFiles(ctx, files, bar.update)
	bar.finish(err != nil)
	if err != nil {
		return err
	}

	fmt.Printf("\n✅ %d indexed, %d duplicate(s), %d failed in %s\n",
		report.Indexed, report.Duplicates, report.Failed, time.Since(start).Round(time.Millisecond))
	for _, r := range report.Files {
		if r.Outcome == service.Failed {
			fmt.Printf("   ❌ %s: %v\n", r.Path, r.Err)
		}
	}
	if report.Failed > 0 && report.Indexed == 0 {
		return fmt.Errorf("no file could be indexed")
	}
	return nil
}

func printIndexed(res *service.IndexResult) {
	fmt.Println("\n✅ Track indexed")
	fmt.Printf("   ID:           %s\n", res.Track.ID)
	fmt.Printf("   Title:        %s\n", res.Track.Title)
	if res.Track.Artist != "" {
		fmt.Printf("   Artist:       %s\n", res.Track.Artist)
	}
	fmt.Printf("   Duration:     %s\n", formatDuration(res.Track.DurationMs))
	fmt.Printf("   Fingerprints: %s\n", humanize.Comma(int64(res.Fingerprints)))
}

func handleFingerprint(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("fingerprint", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "Number of fingerprints to print (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: acousticprint fingerprint [--limit n] <file>")
	}

	svc, err := createService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.Fingerprint(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Printf("🔍 %s\n", fs.Arg(0))
	fmt.Printf("   Trimmed:      samples [%d, %d) at %d Hz\n", res.TrimStart, res.TrimEnd, res.SampleRate)
	fmt.Printf("   Frames:       %d\n", res.Frames)
	fmt.Printf("   Peaks:        %s\n", humanize.Comma(int64(res.Peaks)))
	fmt.Printf("   Pairs:        %s\n", humanize.Comma(int64(res.Pairs)))
	fmt.Printf("   Fingerprints: %s\n\n", humanize.Comma(int64(len(res.Fingerprints))))

	n := len(res.Fingerprints)
	if *limit > 0 && *limit < n {
		n = *limit
	}
	for _, fp := range res.Fingerprints[:n] {
		k := fingerprint.DecodeHash(fp.Hash)
		fmt.Printf("   %08x  anchor=%-3d target=%-3d delta=%-3d at %s\n",
			fp.Hash, k.AnchorBin, k.TargetBin, k.Delta, formatDuration(int(fp.AnchorTimeMs)))
	}
	if n < len(res.Fingerprints) {
		fmt.Printf("   ... and %d more\n", len(res.Fingerprints)-n)
	}
	return nil
}

func handleList(ctx context.Context, cfg *config.Config, _ []string) error {
	svc, err := createService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	tracks, err := svc.ListTracks(ctx)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		fmt.Println("\n📭 No tracks in catalog")
		return nil
	}
	stats, err := svc.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\n📚 %d track(s), %s fingerprints:\n\n", stats.Tracks, humanize.Comma(stats.Fingerprints))
	for i, t := range tracks {
		fmt.Printf("%d. %s", i+1, t.Title)
		if t.Artist != "" {
			fmt.Printf(" by %s", t.Artist)
		}
		fmt.Printf(" (ID: %s)\n", t.ID)
		fmt.Printf("   %s, %s, added %s\n", t.Name, formatDuration(t.DurationMs), humanize.Time(t.CreatedAt))
	}
	return nil
}

func handleShow(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: acousticprint show <track_id>")
	}
	svc, err := createService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	info, err := svc.GetTrack(ctx, args[0])
	if err != nil {
		return fmt.Errorf("track %s: %w", args[0], err)
	}
	fmt.Printf("\n🎵 %s\n", info.Title)
	fmt.Printf("   ID:           %s\n", info.ID)
	fmt.Printf("   File:         %s\n", info.Name)
	if info.Artist != "" {
		fmt.Printf("   Artist:       %s\n", info.Artist)
	}
	fmt.Printf("   Duration:     %s\n", formatDuration(info.DurationMs))
	fmt.Printf("   Digest:       %s\n", info.Digest)
	fmt.Printf("   Fingerprints: %s\n", humanize.Comma(info.Fingerprints))
	fmt.Printf("   Added:        %s (%s)\n", info.CreatedAt.Format(time.RFC3339), humanize.Time(info.CreatedAt))
	return nil
}

func handleDelete(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: acousticprint delete <track_id>")
	}
	svc, err := createService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	info, err := svc.GetTrack(ctx, args[0])
	if err != nil {
		return fmt.Errorf("track %s: %w", args[0], err)
	}
	if err := svc.DeleteTrack(ctx, info.ID); err != nil {
		return err
	}
	fmt.Printf("\n✅ Deleted %s (%s, %s fingerprints)\n", info.Title, info.ID, humanize.Comma(info.Fingerprints))
	return nil
}

func handleLookup(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: acousticprint lookup <hash>")
	}
	hash, err := parseHash(args[0])
	if err != nil {
		return err
	}
	svc, err := createService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	couples, err := svc.Lookup(ctx, hash)
	if err != nil {
		return err
	}
	k := fingerprint.DecodeHash(hash)
	fmt.Printf("\n🔑 %08x  anchor=%d target=%d delta=%d\n", hash, k.AnchorBin, k.TargetBin, k.Delta)
	if len(couples) == 0 {
		fmt.Println("   not in catalog")
		return nil
	}
	for _, c := range couples {
		fmt.Printf("   %s at %s\n", c.TrackID, formatDuration(int(c.AnchorTimeMs)))
	}
	return nil
}

func handleSettings(ctx context.Context, cfg *config.Config, _ []string) error {
	svc, err := createService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	report, err := svc.Settings(ctx)
	if err != nil {
		return err
	}
	drifted := make(map[string]string, len(report.Drift))
	for _, d := range report.Drift {
		drifted[d.Key] = d.Stored
	}
	fmt.Printf("\n⚙️  Fingerprint settings (digest %s)\n\n", report.Digest)
	for _, s := range report.Current {
		if stored, ok := drifted[s.Key]; ok {
			fmt.Printf("   %-18s %-10s ⚠️  catalog has %q\n", s.Key, s.Value, stored)
			continue
		}
		fmt.Printf("   %-18s %s\n", s.Key, s.Value)
	}
	return nil
}

// parseHash accepts decimal or 0x-prefixed hex.
func parseHash(s string) (uint32, error) {
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	return uint32(v), nil
}

func formatDuration(ms int) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%d:%02d.%03d", int(d.Minutes()), int(d.Seconds())%60, ms%1000)
}
