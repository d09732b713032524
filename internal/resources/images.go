package resources

import "strings"

// ImageRecord is the raw image data supplied by the engine client.
type ImageRecord struct {
	ID       string
	RepoTags []string
	Size     int64
}

// Image is a tracked engine image. Its display name is the first usable
// repository tag, or the short ID for dangling images.
type Image struct {
	*Resource

	repoTags []string
	size     int64
}

// NewImage builds an image from an engine record.
func NewImage(rec ImageRecord) *Image {
	return &Image{
		Resource: NewResource(KindImage, rec.ID, imageName(rec), ImageStatusFromTags(rec.RepoTags)),
		repoTags: append([]string(nil), rec.RepoTags...),
		size:     rec.Size,
	}
}

func (i *Image) Base() *Resource { return i.Resource }
func (i *Image) Size() int64     { return i.size }

func (i *Image) RepoTags() []string {
	return append([]string(nil), i.repoTags...)
}

func (i *Image) update(rec ImageRecord) {
	i.repoTags = append([]string(nil), rec.RepoTags...)
	i.size = rec.Size
	i.SetName(imageName(rec))
	i.SetStatus(ImageStatusFromTags(rec.RepoTags))
}

func imageName(rec ImageRecord) string {
	for _, tag := range rec.RepoTags {
		if tag != "" && tag != "<none>:<none>" {
			return tag
		}
	}
	id := strings.TrimPrefix(rec.ID, "sha256:")
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

// ImageList is the authoritative image collection for one engine.
type ImageList struct {
	*collection[*Image]
}

// NewImageList creates an empty, bootstrapped image list.
func NewImageList(opts Options) *ImageList {
	return &ImageList{collection: newCollection[*Image](KindImage, opts)}
}

// Sync reconciles the list with a full image listing.
func (l *ImageList) Sync(records []ImageRecord) error {
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	return l.sync(ids,
		func(i int) *Image { return NewImage(records[i]) },
		func(img *Image, i int) { img.update(records[i]) },
	)
}

// Clear removes every image.
func (l *ImageList) Clear() error {
	return l.clear()
}
