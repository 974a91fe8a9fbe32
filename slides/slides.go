// Package slides implements the document API against Google Slides,
// with Drive-hosted chart images. Client handles live in a bounded
// pool; a request that finds the pool empty blocks until a handle is
// released, the pool never grows.
//
// Two quirks of the Slides wire API shape this adapter:
//   - replaceAllShapesWithImage replies carry only occurrence counts,
//     so created image ids are recovered by diffing each affected
//     page's image elements before and after the batch.
//   - there is no standalone resize request, so a size change and a
//     position change targeting the same object are merged into one
//     absolute updatePageElementTransform built from the element's
//     native dimensions.
package slides

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	gslides "google.golang.org/api/slides/v1"

	"github.com/deckflow/deckflow-go/deckflow"
)

// Config tunes the adapter.
type Config struct {
	// CredentialsFile is the service-account key used for both APIs.
	CredentialsFile string

	// PoolSize bounds the slides client pool.
	PoolSize int
}

// DefaultConfig returns the production pool size.
func DefaultConfig() Config {
	return Config{PoolSize: 3}
}

// Service is the Google-backed document API.
type Service struct {
	pool   chan *gslides.Service
	drive  *drive.Service
	logger *slog.Logger
}

// New builds the adapter and fills the client pool.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Service, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultConfig().PoolSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.ClientOption{option.WithScopes(gslides.PresentationsScope, drive.DriveScope)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	pool := make(chan *gslides.Service, cfg.PoolSize)
	for i := 0; i < cfg.PoolSize; i++ {
		client, err := gslides.NewService(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating slides client: %w", err)
		}
		pool <- client
	}

	driveClient, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating drive client: %w", err)
	}

	return &Service{pool: pool, drive: driveClient, logger: logger}, nil
}

func (s *Service) acquire(ctx context.Context) (*gslides.Service, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case client := <-s.pool:
		return client, nil
	}
}

func (s *Service) release(client *gslides.Service) {
	s.pool <- client
}

// Document fetches a presentation's full container tree.
func (s *Service) Document(ctx context.Context, documentID string) (*deckflow.Document, error) {
	client, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.release(client)

	pres, err := client.Presentations.Get(documentID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetching presentation %s: %w", documentID, err)
	}
	return convertPresentation(pres), nil
}

// BatchUpdate applies the ordered request list as one wire call, plus
// the page fetches needed to recover created ids and native sizes.
func (s *Service) BatchUpdate(ctx context.Context, documentID string, requests []deckflow.Request) ([]deckflow.Reply, error) {
	client, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.release(client)

	imagePages := imagePageIDs(requests)
	var before map[string][]string
	if len(imagePages) > 0 {
		before, err = s.imageIDsByPage(ctx, client, documentID, imagePages)
		if err != nil {
			return nil, err
		}
	}

	greqs, indexOf, err := s.translate(ctx, client, documentID, requests)
	if err != nil {
		return nil, err
	}

	resp, err := client.Presentations.BatchUpdate(documentID, &gslides.BatchUpdatePresentationRequest{
		Requests: greqs,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("batch update on %s: %w", documentID, err)
	}

	replies := make([]deckflow.Reply, len(requests))
	for i := range requests {
		gi := indexOf[i]
		if gi < 0 || gi >= len(resp.Replies) || resp.Replies[gi] == nil {
			continue
		}
		if r := resp.Replies[gi].ReplaceAllText; r != nil {
			replies[i].OccurrencesChanged = int(r.OccurrencesChanged)
		}
		if r := resp.Replies[gi].ReplaceAllShapesWithImage; r != nil {
			replies[i].OccurrencesChanged = int(r.OccurrencesChanged)
		}
	}

	if len(imagePages) > 0 {
		after, err := s.imageIDsByPage(ctx, client, documentID, imagePages)
		if err != nil {
			return nil, err
		}
		assignCreatedIDs(requests, replies, before, after)
	}
	return replies, nil
}

// UploadImage pushes a local chart image to Drive with a public-read
// permission and returns a URL the Slides API can ingest.
func (s *Service) UploadImage(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("opening chart image: %w", err)
	}
	defer f.Close()

	file, err := s.drive.Files.Create(&drive.File{
		Name:     filepath.Base(localPath),
		MimeType: "image/png",
	}).Media(f).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("uploading chart image: %w", err)
	}

	_, err = s.drive.Permissions.Create(file.Id, &drive.Permission{
		Type: "anyone",
		Role: "reader",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("sharing chart image %s: %w", file.Id, err)
	}

	return fmt.Sprintf("https://drive.google.com/uc?id=%s", file.Id), nil
}

// DeleteImage removes an uploaded chart image after the deck is built.
func (s *Service) DeleteImage(ctx context.Context, url string) error {
	var id string
	if _, err := fmt.Sscanf(url, "https://drive.google.com/uc?id=%s", &id); err != nil || id == "" {
		return fmt.Errorf("unrecognized drive URL %q", url)
	}
	if err := s.drive.Files.Delete(id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("deleting chart image %s: %w", id, err)
	}
	return nil
}

// translate converts typed requests to wire requests. indexOf maps each
// input request to its wire index, -1 for requests merged away.
func (s *Service) translate(ctx context.Context, client *gslides.Service, documentID string, requests []deckflow.Request) ([]*gslides.Request, []int, error) {
	// Size and transform requests for the same object collapse into one
	// absolute transform, built from the element's native size.
	type positioning struct {
		size      *deckflow.UpdateSizeRequest
		transform *deckflow.UpdateTransformRequest
		wireIndex int
	}
	byObject := make(map[string]*positioning)
	var order []string

	needsElements := false
	for _, r := range requests {
		if r.UpdateSize != nil || r.UpdateTransform != nil {
			needsElements = true
		}
	}
	var elements map[string]*gslides.PageElement
	if needsElements {
		pres, err := client.Presentations.Get(documentID).Context(ctx).Do()
		if err != nil {
			return nil, nil, fmt.Errorf("fetching elements for positioning: %w", err)
		}
		elements = elementIndex(pres)
	}

	greqs := make([]*gslides.Request, 0, len(requests))
	indexOf := make([]int, len(requests))

	for i, r := range requests {
		switch {
		case r.ReplaceAllText != nil:
			indexOf[i] = len(greqs)
			greqs = append(greqs, &gslides.Request{
				ReplaceAllText: &gslides.ReplaceAllTextRequest{
					ContainsText: &gslides.SubstringMatchCriteria{
						Text:      r.ReplaceAllText.ContainsText,
						MatchCase: r.ReplaceAllText.MatchCase,
					},
					ReplaceText:   r.ReplaceAllText.ReplaceText,
					PageObjectIds: r.ReplaceAllText.PageIDs,
				},
			})

		case r.ReplaceShapeWithImage != nil:
			indexOf[i] = len(greqs)
			greqs = append(greqs, &gslides.Request{
				ReplaceAllShapesWithImage: &gslides.ReplaceAllShapesWithImageRequest{
					ContainsText: &gslides.SubstringMatchCriteria{
						Text:      r.ReplaceShapeWithImage.ContainsText,
						MatchCase: r.ReplaceShapeWithImage.MatchCase,
					},
					ImageUrl:           r.ReplaceShapeWithImage.ImageURL,
					ImageReplaceMethod: string(r.ReplaceShapeWithImage.ReplaceMethod),
					PageObjectIds:      r.ReplaceShapeWithImage.PageIDs,
				},
			})

		case r.UpdateSize != nil:
			indexOf[i] = -1
			p := byObject[r.UpdateSize.ObjectID]
			if p == nil {
				p = &positioning{}
				byObject[r.UpdateSize.ObjectID] = p
				order = append(order, r.UpdateSize.ObjectID)
			}
			p.size = r.UpdateSize

		case r.UpdateTransform != nil:
			indexOf[i] = -1
			p := byObject[r.UpdateTransform.ObjectID]
			if p == nil {
				p = &positioning{}
				byObject[r.UpdateTransform.ObjectID] = p
				order = append(order, r.UpdateTransform.ObjectID)
			}
			p.transform = r.UpdateTransform

		default:
			indexOf[i] = -1
		}
	}

	for _, objectID := range order {
		p := byObject[objectID]
		greq, err := positioningRequest(objectID, p.size, p.transform, elements[objectID])
		if err != nil {
			s.logger.Warn("skipping positioning request", "object_id", objectID, "error", err)
			continue
		}
		greqs = append(greqs, greq)
	}
	return greqs, indexOf, nil
}

// positioningRequest builds one absolute transform from the desired
// size and translation and the element's native dimensions.
func positioningRequest(objectID string, size *deckflow.UpdateSizeRequest, transform *deckflow.UpdateTransformRequest, element *gslides.PageElement) (*gslides.Request, error) {
	if element == nil {
		return nil, fmt.Errorf("element %s not found in presentation", objectID)
	}
	if element.Size == nil || element.Size.Width == nil || element.Size.Height == nil {
		return nil, fmt.Errorf("element %s has no native size", objectID)
	}

	scaleX, scaleY := 1.0, 1.0
	if element.Transform != nil {
		scaleX, scaleY = element.Transform.ScaleX, element.Transform.ScaleY
	}
	if size != nil {
		scaleX = float64(size.Width) / element.Size.Width.Magnitude
		scaleY = float64(size.Height) / element.Size.Height.Magnitude
	}

	translateX, translateY := 0.0, 0.0
	applyMode := "ABSOLUTE"
	if element.Transform != nil {
		translateX, translateY = element.Transform.TranslateX, element.Transform.TranslateY
	}
	if transform != nil {
		translateX = float64(transform.TranslateX)
		translateY = float64(transform.TranslateY)
		if transform.ApplyMode != "" {
			applyMode = transform.ApplyMode
		}
	}

	return &gslides.Request{
		UpdatePageElementTransform: &gslides.UpdatePageElementTransformRequest{
			ObjectId: objectID,
			Transform: &gslides.AffineTransform{
				ScaleX:     scaleX,
				ScaleY:     scaleY,
				TranslateX: translateX,
				TranslateY: translateY,
				Unit:       "EMU",
			},
			ApplyMode: applyMode,
		},
	}, nil
}

// imagePageIDs collects the pages targeted by image replacements.
func imagePageIDs(requests []deckflow.Request) []string {
	seen := make(map[string]struct{})
	var pages []string
	for _, r := range requests {
		if r.ReplaceShapeWithImage == nil {
			continue
		}
		for _, id := range r.ReplaceShapeWithImage.PageIDs {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				pages = append(pages, id)
			}
		}
	}
	return pages
}

// imageIDsByPage snapshots each page's image element ids in order.
func (s *Service) imageIDsByPage(ctx context.Context, client *gslides.Service, documentID string, pageIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(pageIDs))
	for _, pageID := range pageIDs {
		page, err := client.Presentations.Pages.Get(documentID, pageID).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("fetching page %s: %w", pageID, err)
		}
		for _, pe := range page.PageElements {
			if pe.Image != nil {
				out[pageID] = append(out[pageID], pe.ObjectId)
			}
		}
	}
	return out, nil
}

// assignCreatedIDs matches new image ids to image-replace requests, in
// request order per page.
func assignCreatedIDs(requests []deckflow.Request, replies []deckflow.Reply, before, after map[string][]string) {
	newByPage := make(map[string][]string)
	for pageID, ids := range after {
		prior := make(map[string]struct{}, len(before[pageID]))
		for _, id := range before[pageID] {
			prior[id] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := prior[id]; !ok {
				newByPage[pageID] = append(newByPage[pageID], id)
			}
		}
	}

	for i, r := range requests {
		if r.ReplaceShapeWithImage == nil || len(r.ReplaceShapeWithImage.PageIDs) == 0 {
			continue
		}
		pageID := r.ReplaceShapeWithImage.PageIDs[0]
		if ids := newByPage[pageID]; len(ids) > 0 {
			replies[i].CreatedObjectID = ids[0]
			newByPage[pageID] = ids[1:]
		}
	}
}

// elementIndex flattens a presentation's elements by object id.
func elementIndex(pres *gslides.Presentation) map[string]*gslides.PageElement {
	out := make(map[string]*gslides.PageElement)
	for _, page := range pres.Slides {
		for _, pe := range page.PageElements {
			out[pe.ObjectId] = pe
		}
	}
	return out
}

// convertPresentation maps the wire presentation onto the neutral
// document model.
func convertPresentation(pres *gslides.Presentation) *deckflow.Document {
	doc := &deckflow.Document{ID: pres.PresentationId, Title: pres.Title}
	for i, page := range pres.Slides {
		container := deckflow.Container{ID: page.ObjectId, Index: i}
		for _, pe := range page.PageElements {
			container.Elements = append(container.Elements, convertElement(pe))
		}
		doc.Containers = append(doc.Containers, container)
	}
	return doc
}

func convertElement(pe *gslides.PageElement) deckflow.Element {
	el := deckflow.Element{
		ObjectID: pe.ObjectId,
		IsImage:  pe.Image != nil,
		Text:     elementText(pe),
	}
	if pe.Size != nil && pe.Size.Width != nil && pe.Size.Height != nil {
		el.Size = &deckflow.ElementSize{
			Width:  int64(pe.Size.Width.Magnitude),
			Height: int64(pe.Size.Height.Magnitude),
		}
	}
	if pe.Transform != nil {
		el.Transform = &deckflow.ElementTransform{
			ScaleX:     pe.Transform.ScaleX,
			ScaleY:     pe.Transform.ScaleY,
			TranslateX: int64(pe.Transform.TranslateX),
			TranslateY: int64(pe.Transform.TranslateY),
		}
	}
	return el
}

func elementText(pe *gslides.PageElement) string {
	if pe.Shape == nil || pe.Shape.Text == nil {
		return ""
	}
	var text string
	for _, te := range pe.Shape.Text.TextElements {
		if te.TextRun != nil {
			text += te.TextRun.Content
		}
	}
	return text
}
