package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ai-motiondraft-be/internal/dto"
	"ai-motiondraft-be/internal/entity"
	"ai-motiondraft-be/internal/repository/specification"
	"ai-motiondraft-be/internal/repository/unitofwork"
	"ai-motiondraft-be/pkg/embedding"
	"ai-motiondraft-be/pkg/events"
	pktNats "ai-motiondraft-be/pkg/nats"

	"github.com/google/uuid"
)

type IDocumentService interface {
	Upload(ctx context.Context, userId uuid.UUID, req *dto.UploadDocumentRequest) (*dto.DocumentResponse, error)
	List(ctx context.Context, userId uuid.UUID) (*dto.ListDocumentsResponse, error)
	Show(ctx context.Context, userId uuid.UUID, id uint) (*dto.DocumentResponse, error)
	Search(ctx context.Context, userId uuid.UUID, query string, limit int) (*dto.SearchDocumentsResponse, error)
	Delete(ctx context.Context, userId uuid.UUID, id uint) error
}

type documentService struct {
	uowFactory       unitofwork.RepositoryFactory
	publisherService IPublisherService
	embedder         embedding.EmbeddingProvider
	eventPublisher   *pktNats.Publisher
}

func NewDocumentService(
	uowFactory unitofwork.RepositoryFactory,
	publisherService IPublisherService,
	embedder embedding.EmbeddingProvider,
	eventPublisher *pktNats.Publisher,
) IDocumentService {
	return &documentService{
		uowFactory:       uowFactory,
		publisherService: publisherService,
		embedder:         embedder,
		eventPublisher:   eventPublisher,
	}
}

// Upload stores a document for the user. Uploading a document with a name the
// user already owns replaces that document's content instead of creating a
// duplicate, so references by name keep resolving to a single row.
func (c *documentService) Upload(ctx context.Context, userId uuid.UUID, req *dto.UploadDocumentRequest) (*dto.DocumentResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)

	existing, err := uow.DocumentRepository().FindOne(ctx,
		specification.ByName{Name: req.Name},
		specification.OwnedByUser{UserID: userId},
	)
	if err != nil {
		return nil, err
	}

	var doc *entity.Document
	if existing != nil {
		now := time.Now()
		existing.Type = req.Type
		existing.Content = req.Content
		existing.UpdatedAt = &now
		if err := uow.DocumentRepository().Update(ctx, existing); err != nil {
			return nil, err
		}
		doc = existing
	} else {
		doc = &entity.Document{
			UserId:    userId,
			Name:      req.Name,
			Type:      req.Type,
			Content:   req.Content,
			CreatedAt: time.Now(),
		}
		if err := uow.DocumentRepository().Create(ctx, doc); err != nil {
			return nil, err
		}
	}

	msgPayload := dto.PublishIndexDocumentMessage{
		DocumentId: doc.Id,
		UserId:     userId,
	}
	msgJson, err := json.Marshal(msgPayload)
	if err != nil {
		return nil, err
	}
	if err := c.publisherService.Publish(ctx, msgJson); err != nil {
		return nil, err
	}

	if c.eventPublisher != nil {
		evt := events.NewDocumentCreated(userId.String(), doc.Id, doc.Name)
		// Auxiliary notification, the upload itself already succeeded.
		if err := c.eventPublisher.Publish(ctx, evt); err != nil {
			fmt.Printf("[WARN] Failed to publish DOCUMENT_CREATED event: %v\n", err)
		}
	}

	return &dto.DocumentResponse{
		Id:        doc.Id,
		Name:      doc.Name,
		Type:      doc.Type,
		CreatedAt: doc.CreatedAt,
	}, nil
}

func (c *documentService) List(ctx context.Context, userId uuid.UUID) (*dto.ListDocumentsResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)

	docs, err := uow.DocumentRepository().FindAll(ctx,
		specification.OwnedByUser{UserID: userId},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	res := dto.ListDocumentsResponse{
		Documents: make([]dto.DocumentResponse, 0, len(docs)),
		Total:     int64(len(docs)),
	}
	for _, doc := range docs {
		res.Documents = append(res.Documents, dto.DocumentResponse{
			Id:        doc.Id,
			Name:      doc.Name,
			Type:      doc.Type,
			CreatedAt: doc.CreatedAt,
		})
	}

	return &res, nil
}

func (c *documentService) Show(ctx context.Context, userId uuid.UUID, id uint) (*dto.DocumentResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)

	doc, err := uow.DocumentRepository().FindOne(ctx,
		specification.ByNumericID{ID: id},
		specification.OwnedByUser{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}

	return &dto.DocumentResponse{
		Id:        doc.Id,
		Name:      doc.Name,
		Type:      doc.Type,
		CreatedAt: doc.CreatedAt,
	}, nil
}

// Search ranks the user's documents against a natural-language query using
// the stored chunk embeddings. Hits are aggregated per document; the best
// chunk becomes the snippet the picker shows.
func (c *documentService) Search(ctx context.Context, userId uuid.UUID, query string, limit int) (*dto.SearchDocumentsResponse, error) {
	if limit <= 0 || limit > 20 {
		limit = 5
	}

	res, err := c.embedder.Generate(query, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, fmt.Errorf("failed to embed search query: %w", err)
	}

	uow := c.uowFactory.NewUnitOfWork(ctx)
	// Over-fetch chunks so aggregation still fills the page when one document
	// dominates the top hits.
	scored, err := uow.DocumentEmbeddingRepository().SearchSimilar(ctx, res.Embedding.Values, limit*4, userId, nil)
	if err != nil {
		return nil, err
	}

	byDoc := make(map[uint]*dto.SearchDocumentMatch)
	order := make([]uint, 0, len(scored))
	for _, s := range scored {
		docId := s.Embedding.DocumentId
		if _, seen := byDoc[docId]; seen {
			continue
		}
		byDoc[docId] = &dto.SearchDocumentMatch{
			Id:         docId,
			Snippet:    s.Embedding.ChunkText,
			Similarity: s.Similarity,
		}
		order = append(order, docId)
		if len(order) == limit {
			break
		}
	}

	if len(order) > 0 {
		docs, err := uow.DocumentRepository().FindAll(ctx,
			specification.ByNumericIDs{IDs: order},
			specification.OwnedByUser{UserID: userId},
		)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			if match, ok := byDoc[doc.Id]; ok {
				match.Name = doc.Name
				match.Type = doc.Type
			}
		}
	}

	out := &dto.SearchDocumentsResponse{Matches: make([]dto.SearchDocumentMatch, 0, len(order))}
	for _, id := range order {
		out.Matches = append(out.Matches, *byDoc[id])
	}
	return out, nil
}

func (c *documentService) Delete(ctx context.Context, userId uuid.UUID, id uint) error {
	uow := c.uowFactory.NewUnitOfWork(ctx)

	doc, err := uow.DocumentRepository().FindOne(ctx,
		specification.ByNumericID{ID: id},
		specification.OwnedByUser{UserID: userId},
	)
	if err != nil {
		return err
	}
	if doc == nil {
		return nil
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.DocumentRepository().Delete(ctx, id); err != nil {
		return err
	}
	if err := uow.DocumentEmbeddingRepository().DeleteByDocumentId(ctx, id); err != nil {
		return err
	}

	return uow.Commit()
}
