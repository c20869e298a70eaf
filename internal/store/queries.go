package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/teris-io/shortid"
)

func (db *PgChatStore) GetAccount(userId string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, status, last_seen, created_at, updated_at FROM users "+
			"WHERE id = $1 LIMIT 1",
		userId,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.Status,
		&u.LastSeen,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}

	return u, err
}

func (db *PgChatStore) GetConversation(conversationId string) (Conversation, error) {
	row := db.conn.QueryRow(
		"SELECT c.id, c.external_id, c.name, c.is_group, c.created_at, c.updated_at, "+
			"COALESCE(array_agg(p.user_id) FILTER (WHERE p.user_id IS NOT NULL), '{}') "+
			"FROM conversations c "+
			"LEFT JOIN conversation_participants p ON p.conversation_id = c.id "+
			"WHERE c.id = $1 "+
			"GROUP BY c.id",
		conversationId,
	)

	var c Conversation
	err := row.Scan(
		&c.Id,
		&c.ExternalId,
		&c.Name,
		&c.IsGroup,
		&c.CreatedAt,
		&c.UpdatedAt,
		pq.Array(&c.ParticipantIds),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}

	return c, err
}

func (db *PgChatStore) CreateConversation(params CreateConversationParams) (Conversation, error) {
	externalId, err := shortid.Generate()
	if err != nil {
		return Conversation{}, fmt.Errorf("generate external id: %w", err)
	}

	now := time.Now().UTC()
	row := db.conn.QueryRow(
		"INSERT INTO conversations (id, external_id, name, is_group, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id, external_id, name, is_group, created_at, updated_at",
		uuid.NewString(),
		externalId,
		params.Name,
		params.IsGroup,
		now,
	)

	var c Conversation
	if err := row.Scan(&c.Id, &c.ExternalId, &c.Name, &c.IsGroup, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Conversation{}, err
	}

	for _, userId := range params.ParticipantIds {
		if err := db.AddParticipant(c.Id, userId); err != nil {
			return Conversation{}, fmt.Errorf("add participant %q: %w", userId, err)
		}
		c.ParticipantIds = append(c.ParticipantIds, userId)
	}

	return c, nil
}

func (db *PgChatStore) FindConversationIdsForParticipant(ctx context.Context, userId string, limit int) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT conversation_id FROM conversation_participants "+
			"WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2",
		userId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (db *PgChatStore) IsParticipant(conversationId, userId string) bool {
	row := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2)",
		conversationId,
		userId,
	)

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false
	}

	return exists
}

func (db *PgChatStore) AddParticipant(conversationId, userId string) error {
	_, err := db.conn.Exec(
		"INSERT INTO conversation_participants (conversation_id, user_id, created_at) "+
			"VALUES ($1, $2, $3) ON CONFLICT (conversation_id, user_id) DO NOTHING",
		conversationId,
		userId,
		time.Now().UTC(),
	)

	return err
}

func (db *PgChatStore) RemoveParticipant(conversationId, userId string) error {
	_, err := db.conn.Exec(
		"DELETE FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2",
		conversationId,
		userId,
	)

	return err
}

func (db *PgChatStore) CreateMessage(params CreateMessageParams) (Message, error) {
	row := db.conn.QueryRow(
		"INSERT INTO messages (id, conversation_id, sender_id, content, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, conversation_id, sender_id, content, created_at",
		uuid.NewString(),
		params.ConversationId,
		params.SenderId,
		params.Content,
		time.Now().UTC(),
	)

	var m Message
	err := row.Scan(&m.Id, &m.ConversationId, &m.SenderId, &m.Content, &m.CreatedAt)

	return m, err
}

func (db *PgChatStore) GetMessage(messageId string) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT id, conversation_id, sender_id, content, created_at FROM messages "+
			"WHERE id = $1 LIMIT 1",
		messageId,
	)

	var m Message
	err := row.Scan(&m.Id, &m.ConversationId, &m.SenderId, &m.Content, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, err
	}

	if m.Receipts, err = db.getReceipts(m.Id); err != nil {
		return Message{}, fmt.Errorf("get receipts: %w", err)
	}
	if m.Reactions, err = db.getReactions(m.Id); err != nil {
		return Message{}, fmt.Errorf("get reactions: %w", err)
	}

	return m, nil
}

func (db *PgChatStore) getReceipts(messageId string) ([]Receipt, error) {
	rows, err := db.conn.Query(
		"SELECT user_id, delivered_at, read_at FROM message_receipts WHERE message_id = $1",
		messageId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []Receipt
	for rows.Next() {
		var rec Receipt
		if err := rows.Scan(&rec.UserId, &rec.DeliveredAt, &rec.ReadAt); err != nil {
			return nil, err
		}
		receipts = append(receipts, rec)
	}

	return receipts, rows.Err()
}

func (db *PgChatStore) getReactions(messageId string) ([]Reaction, error) {
	rows, err := db.conn.Query(
		"SELECT emoji, array_agg(user_id) FROM message_reactions "+
			"WHERE message_id = $1 GROUP BY emoji",
		messageId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reactions []Reaction
	for rows.Next() {
		var r Reaction
		if err := rows.Scan(&r.Emoji, pq.Array(&r.UserIds)); err != nil {
			return nil, err
		}
		reactions = append(reactions, r)
	}

	return reactions, rows.Err()
}

func (db *PgChatStore) GetMessages(conversationId string, before time.Time, limit int) ([]Message, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT id, conversation_id, sender_id, content, created_at FROM messages "+
			"WHERE conversation_id = $1 AND created_at < $2 "+
			"ORDER BY created_at DESC LIMIT $3",
		conversationId,
		before,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Id, &m.ConversationId, &m.SenderId, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (db *PgChatStore) PersistDeliveryUpdate(messageId, recipientId string, kind DeliveryKind) error {
	now := time.Now().UTC()

	switch kind {
	case DeliveryDelivered:
		_, err := db.conn.Exec(
			"INSERT INTO message_receipts (message_id, user_id, delivered_at) "+
				"VALUES ($1, $2, $3) ON CONFLICT (message_id, user_id) DO NOTHING",
			messageId,
			recipientId,
			now,
		)
		return err
	case DeliveryRead:
		// the upsert keeps delivered_at <= read_at for recipients with no
		// prior delivered row
		_, err := db.conn.Exec(
			"INSERT INTO message_receipts (message_id, user_id, delivered_at, read_at) "+
				"VALUES ($1, $2, $3, $3) ON CONFLICT (message_id, user_id) "+
				"DO UPDATE SET read_at = COALESCE(message_receipts.read_at, EXCLUDED.read_at)",
			messageId,
			recipientId,
			now,
		)
		return err
	default:
		return fmt.Errorf("unknown delivery kind %q", kind)
	}
}

func (db *PgChatStore) PersistReactionUpdate(messageId, emoji, userId string, op ReactionOp) (int, error) {
	switch op {
	case ReactionAdd:
		if _, err := db.conn.Exec(
			"INSERT INTO message_reactions (message_id, emoji, user_id, created_at) "+
				"VALUES ($1, $2, $3, $4) ON CONFLICT (message_id, emoji, user_id) DO NOTHING",
			messageId,
			emoji,
			userId,
			time.Now().UTC(),
		); err != nil {
			return 0, err
		}
	case ReactionRemove:
		if _, err := db.conn.Exec(
			"DELETE FROM message_reactions WHERE message_id = $1 AND emoji = $2 AND user_id = $3",
			messageId,
			emoji,
			userId,
		); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("unknown reaction op %q", op)
	}

	row := db.conn.QueryRow(
		"SELECT COUNT(*) FROM message_reactions WHERE message_id = $1 AND emoji = $2",
		messageId,
		emoji,
	)

	var count int
	err := row.Scan(&count)

	return count, err
}

func (db *PgChatStore) UpdatePresence(userId, status string, lastSeen time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE users SET status = $2, last_seen = $3, updated_at = $3 WHERE id = $1",
		userId,
		status,
		lastSeen,
	)

	return err
}
