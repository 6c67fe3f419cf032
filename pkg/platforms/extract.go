package platforms

import "fedicaption/pkg/models"

// ExtractImages returns every image of post that needs a caption, in
// attachment order. Index is the attachment's position in the post. The
// post is not modified; each ImageRef carries its own copy of the attachment.
func ExtractImages(post models.Post) []models.ImageRef {
	refs := make([]models.ImageRef, 0, len(post.Attachments))
	for i, a := range post.Attachments {
		if !models.NeedsCaption(a) {
			continue
		}

		attachment := a
		if a.Meta != nil {
			attachment.Meta = make(map[string]interface{}, len(a.Meta))
			for k, v := range a.Meta {
				attachment.Meta[k] = v
			}
		}

		refs = append(refs, models.ImageRef{
			URL:           a.URL,
			MediaType:     a.MediaType,
			AttachmentID:  a.ID,
			Index:         i,
			PostID:        post.ID,
			PostTimestamp: post.Published,
			Attachment:    attachment,
		})
	}
	return refs
}
