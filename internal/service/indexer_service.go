package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"ai-motiondraft-be/internal/dto"
	"ai-motiondraft-be/internal/entity"
	"ai-motiondraft-be/internal/repository/specification"
	"ai-motiondraft-be/internal/repository/unitofwork"
	"ai-motiondraft-be/pkg/embedding"
	"ai-motiondraft-be/pkg/events"
	pktNats "ai-motiondraft-be/pkg/nats"
	"ai-motiondraft-be/pkg/utils"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

type IIndexerService interface {
	Consume(ctx context.Context) error
}

// indexerService chunks uploaded documents and writes their vector
// embeddings so reference lookups can run similarity search.
type indexerService struct {
	pubSub            *gochannel.GoChannel
	topicName         string
	uowFactory        unitofwork.RepositoryFactory
	embeddingProvider embedding.EmbeddingProvider
	eventPublisher    *pktNats.Publisher
}

func NewIndexerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
	embeddingProvider embedding.EmbeddingProvider,
	eventPublisher *pktNats.Publisher,
) IIndexerService {
	return &indexerService{
		pubSub:            pubSub,
		topicName:         topicName,
		uowFactory:        uowFactory,
		embeddingProvider: embeddingProvider,
		eventPublisher:    eventPublisher,
	}
}

func (cs *indexerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *indexerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.PublishIndexDocumentMessage
	err := json.Unmarshal(msg.Payload, &payload)
	if err != nil {
		log.Printf("[ERROR] Failed to unmarshal index message: %v", err)
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	log.Printf("[INFO] Indexing document %d", payload.DocumentId)

	uow := cs.uowFactory.NewUnitOfWork(ctx)

	doc, err := uow.DocumentRepository().FindOne(ctx, specification.ByNumericID{ID: payload.DocumentId})
	if err != nil {
		log.Printf("[ERROR] Failed to get document %d: %v", payload.DocumentId, err)
		msg.Nack() // Nack for retriable errors
		return
	}
	if doc == nil {
		log.Printf("[ERROR] Document not found: %d", payload.DocumentId)
		msg.Ack() // Deleted before indexing caught up. Ack.
		return
	}

	docUpdatedAt := "-"
	if doc.UpdatedAt != nil {
		docUpdatedAt = doc.UpdatedAt.Format(time.RFC3339)
	}

	content := fmt.Sprintf(`Document Name: %s
Document Type: %s

%s

Created At: %s
Updated At: %s`,
		doc.Name,
		doc.Type,
		doc.Content,
		doc.CreatedAt.Format(time.RFC3339),
		docUpdatedAt,
	)

	// ChunkSize: 1500 chars (approx 375 tokens), Overlap: 200 chars
	chunks := utils.SplitText(content, 1500, 200)
	log.Printf("[INFO] Document %d split into %d chunks", payload.DocumentId, len(chunks))

	var newEmbeddings []*entity.DocumentEmbedding

	for i, chunk := range chunks {
		res, err := cs.embeddingProvider.Generate(chunk, "RETRIEVAL_DOCUMENT")
		if err != nil {
			log.Printf("[ERROR] Failed to generate embedding for chunk %d of document %d: %v", i, payload.DocumentId, err)
			msg.Nack()
			return
		}

		newEmbeddings = append(newEmbeddings, &entity.DocumentEmbedding{
			Id:         uuid.New(),
			DocumentId: doc.Id,
			UserId:     doc.UserId,
			ChunkIndex: i,
			ChunkText:  chunk,
			Embedding:  res.Embedding.Values,
			CreatedAt:  time.Now(),
		})
	}

	if err := uow.Begin(ctx); err != nil {
		log.Printf("[ERROR] Failed to begin transaction: %v", err)
		msg.Nack()
		return
	}
	defer uow.Rollback()

	// Re-index replaces any previous chunks for the document.
	if err := uow.DocumentEmbeddingRepository().DeleteByDocumentId(ctx, doc.Id); err != nil {
		log.Printf("[ERROR] Failed to delete old embeddings: %v", err)
		msg.Nack()
		return
	}

	if len(newEmbeddings) > 0 {
		if err := uow.DocumentEmbeddingRepository().CreateBulk(ctx, newEmbeddings); err != nil {
			log.Printf("[ERROR] Failed to create bulk embeddings: %v", err)
			msg.Nack()
			return
		}
	}

	if err := uow.Commit(); err != nil {
		log.Printf("[ERROR] Failed to commit transaction: %v", err)
		msg.Nack()
		return
	}

	if cs.eventPublisher != nil {
		evt := events.NewDocumentIndexed(doc.UserId.String(), doc.Id, len(newEmbeddings))
		if err := cs.eventPublisher.Publish(ctx, evt); err != nil {
			log.Printf("[WARN] Failed to publish DOCUMENT_INDEXED event: %v", err)
		}
	}

	log.Printf("[SUCCESS] Document %d indexed: %d chunks", payload.DocumentId, len(newEmbeddings))
	msg.Ack()
}
