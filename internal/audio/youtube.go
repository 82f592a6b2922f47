package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lrstanley/go-ytdlp"

	"github.com/himanishpuri/acousticprint/pkg/utils"
)

// DownloadYouTube fetches the audio track of a YouTube video as WAV into dir
// and returns the file path. yt-dlp and ffmpeg must be installed.
func DownloadYouTube(ctx context.Context, videoURL, dir string) (string, error) {
	id, err := utils.ExtractYouTubeID(videoURL)
	if err != nil {
		return "", err
	}
	if err := utils.MakeDir(dir); err != nil {
		return "", err
	}

	dl := ytdlp.New().
		NoPlaylist().
		ExtractAudio().
		AudioFormat("wav").
		Output(filepath.Join(dir, id+".%(ext)s"))

	if _, err := dl.Run(ctx, videoURL); err != nil {
		return "", fmt.Errorf("yt-dlp %s: %w", id, err)
	}

	path := filepath.Join(dir, id+".wav")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("yt-dlp produced no wav for %s: %w", id, err)
	}
	return path, nil
}
