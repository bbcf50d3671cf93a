package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/pod-budget-chat/backend/internal/models"
)

type ChatRepository struct {
	db *pgxpool.Pool
}

// NewChatRepository создает репозиторий чата домохозяйства.
func NewChatRepository(db *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{db: db}
}

// GetOrCreateThread возвращает тред домохозяйства, создавая его при первом сообщении.
func (r *ChatRepository) GetOrCreateThread(ctx context.Context, householdID uuid.UUID) (models.ChatThread, error) {
	var thread models.ChatThread

	err := r.db.QueryRow(ctx,
		`SELECT id, household_id, created_at
		 FROM chat_threads
		 WHERE household_id = $1
		 ORDER BY created_at
		 LIMIT 1`,
		householdID,
	).Scan(&thread.ID, &thread.HouseholdID, &thread.CreatedAt)
	if err == nil {
		return thread, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return thread, err
	}

	err = r.db.QueryRow(ctx,
		`INSERT INTO chat_threads (id, household_id)
		 VALUES ($1, $2)
		 ON CONFLICT (household_id) DO UPDATE SET household_id = EXCLUDED.household_id
		 RETURNING id, household_id, created_at`,
		uuid.New(), householdID,
	).Scan(&thread.ID, &thread.HouseholdID, &thread.CreatedAt)
	if err != nil {
		return thread, err
	}

	return thread, nil
}

// InsertMessage сохраняет сообщение чата и возвращает его с метками времени.
func (r *ChatRepository) InsertMessage(ctx context.Context, threadID uuid.UUID, senderRole models.ChatSenderRole, senderUserID *uuid.UUID, text string) (models.ChatMessage, error) {
	var message models.ChatMessage

	err := r.db.QueryRow(ctx,
		`INSERT INTO chat_messages (id, thread_id, sender_role, sender_user_id, text)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, thread_id, sender_role, sender_user_id, text, created_at`,
		uuid.New(), threadID, senderRole, senderUserID, text,
	).Scan(&message.ID, &message.ThreadID, &message.SenderRole, &message.SenderUserID, &message.Text, &message.CreatedAt)
	if err != nil {
		return message, err
	}

	return message, nil
}

// ListRecentMessages возвращает последние сообщения треда от старых к новым.
func (r *ChatRepository) ListRecentMessages(ctx context.Context, threadID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, thread_id, sender_role, sender_user_id, text, created_at
		 FROM (
			SELECT id, thread_id, sender_role, sender_user_id, text, created_at
			FROM chat_messages
			WHERE thread_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		 ) recent
		 ORDER BY created_at`,
		threadID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.ChatMessage, 0)
	for rows.Next() {
		var message models.ChatMessage

		err := rows.Scan(&message.ID, &message.ThreadID, &message.SenderRole, &message.SenderUserID, &message.Text, &message.CreatedAt)
		if err != nil {
			return nil, err
		}

		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}
