package audio

import (
	"os"

	"github.com/dhowden/tag"
)

// Tags holds the descriptive metadata embedded in an audio file.
type Tags struct {
	Title  string
	Artist string
	Album  string
	Format string
}

// ReadTags returns the embedded tags of path. Files without a recognised tag
// block return tag.ErrNoTagsFound.
func ReadTags(path string) (Tags, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tags{}, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return Tags{}, err
	}
	return Tags{
		Title:  m.Title(),
		Artist: m.Artist(),
		Album:  m.Album(),
		Format: string(m.Format()),
	}, nil
}
