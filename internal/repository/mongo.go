package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/spec-kit/support-desk/internal/domain"
)

// Collection names.
const (
	ColUsers   = "users"
	ColTickets = "tickets"
)

// EnsureMongoIndexes creates the unique and lookup indexes the repositories rely on.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	type idx struct {
		col    string
		keys   bson.D
		unique bool
	}

	indexes := []idx{
		{ColUsers, bson.D{{Key: "email", Value: 1}}, true},
		{ColTickets, bson.D{{Key: "token", Value: 1}}, true},
		{ColTickets, bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}, false},
		{ColTickets, bson.D{{Key: "created_at", Value: -1}}, false},
	}

	for _, i := range indexes {
		model := mongo.IndexModel{Keys: i.keys}
		if i.unique {
			model.Options = options.Index().SetUnique(true)
		}
		if _, err := db.Collection(i.col).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("create index on %s: %w", i.col, err)
		}
	}
	return nil
}

type userDocument struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	Role         string    `bson:"role"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func (d userDocument) toDomain() *domain.User {
	return &domain.User{
		ID:           d.ID,
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Role:         domain.Role(d.Role),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type mongoUserRepository struct {
	col *mongo.Collection
}

// NewMongoUserRepository returns a MongoDB-backed implementation.
func NewMongoUserRepository(db *mongo.Database) UserRepository {
	return &mongoUserRepository{col: db.Collection(ColUsers)}
}

func (r *mongoUserRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	_, err := r.col.InsertOne(ctx, userDocument{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Role:         string(user.Role),
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	})
	return mapMongoError(err)
}

func (r *mongoUserRepository) UpdateProfile(ctx context.Context, user *domain.User) error {
	user.UpdatedAt = time.Now().UTC()
	return r.set(ctx, user.ID, bson.D{
		{Key: "name", Value: user.Name},
		{Key: "email", Value: user.Email},
		{Key: "updated_at", Value: user.UpdatedAt},
	})
}

func (r *mongoUserRepository) SetPassword(ctx context.Context, id, passwordHash string) error {
	return r.set(ctx, id, bson.D{
		{Key: "password_hash", Value: passwordHash},
		{Key: "updated_at", Value: time.Now().UTC()},
	})
}

func (r *mongoUserRepository) SetRole(ctx context.Context, id string, role domain.Role) error {
	return r.set(ctx, id, bson.D{
		{Key: "role", Value: string(role)},
		{Key: "updated_at", Value: time.Now().UTC()},
	})
}

// set applies a $set of only the given fields.
func (r *mongoUserRepository) set(ctx context.Context, id string, fields bson.D) error {
	res, err := r.col.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, bson.D{{Key: "$set", Value: fields}})
	if err != nil {
		return mapMongoError(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *mongoUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

func (r *mongoUserRepository) findOne(ctx context.Context, filter bson.D) (*domain.User, error) {
	var doc userDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapMongoError(err)
	}
	return doc.toDomain(), nil
}

type ticketDocument struct {
	ID          string              `bson:"_id"`
	Token       string              `bson:"token"`
	OwnerID     *string             `bson:"owner_id,omitempty"`
	Name        string              `bson:"name"`
	Phone       string              `bson:"phone"`
	Email       string              `bson:"email"`
	Subject     string              `bson:"subject"`
	Description string              `bson:"description"`
	Status      string              `bson:"status"`
	Priority    string              `bson:"priority,omitempty"`
	Attachments []domain.Attachment `bson:"attachments"`
	CreatedAt   time.Time           `bson:"created_at"`
	UpdatedAt   time.Time           `bson:"updated_at"`
}

func newTicketDocument(t *domain.Ticket) ticketDocument {
	return ticketDocument{
		ID:          t.ID,
		Token:       t.Token,
		OwnerID:     t.OwnerID,
		Name:        t.Name,
		Phone:       t.Phone,
		Email:       t.Email,
		Subject:     t.Subject,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		Attachments: t.Attachments,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func (d ticketDocument) toDomain() *domain.Ticket {
	attachments := d.Attachments
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	return &domain.Ticket{
		ID:          d.ID,
		Token:       d.Token,
		OwnerID:     d.OwnerID,
		Name:        d.Name,
		Phone:       d.Phone,
		Email:       d.Email,
		Subject:     d.Subject,
		Description: d.Description,
		Status:      domain.TicketStatus(d.Status),
		Priority:    domain.TicketPriority(d.Priority),
		Attachments: attachments,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type mongoTicketRepository struct {
	col *mongo.Collection
}

// NewMongoTicketRepository returns a MongoDB-backed implementation.
func NewMongoTicketRepository(db *mongo.Database) TicketRepository {
	return &mongoTicketRepository{col: db.Collection(ColTickets)}
}

func (r *mongoTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.Attachments == nil {
		ticket.Attachments = []domain.Attachment{}
	}
	now := time.Now().UTC()
	ticket.CreatedAt, ticket.UpdatedAt = now, now
	_, err := r.col.InsertOne(ctx, newTicketDocument(ticket))
	return mapMongoError(err)
}

func (r *mongoTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *mongoTicketRepository) GetByToken(ctx context.Context, token string) (*domain.Ticket, error) {
	return r.findOne(ctx, bson.D{{Key: "token", Value: token}})
}

func (r *mongoTicketRepository) TokenExists(ctx context.Context, token string) (bool, error) {
	n, err := r.col.CountDocuments(ctx, bson.D{{Key: "token", Value: token}}, options.Count().SetLimit(1))
	if err != nil {
		return false, mapMongoError(err)
	}
	return n > 0, nil
}

func (r *mongoTicketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	cursor, err := r.col.Find(ctx, ticketListFilter(filter), ticketListOptions(filter))
	if err != nil {
		return nil, mapMongoError(err)
	}
	defer cursor.Close(ctx)

	result := []domain.Ticket{}
	for cursor.Next(ctx) {
		var doc ticketDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		result = append(result, *doc.toDomain())
	}
	return result, cursor.Err()
}

func (r *mongoTicketRepository) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus) (*domain.Ticket, error) {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "status", Value: string(status)},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc ticketDocument
	if err := r.col.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: id}}, update, opts).Decode(&doc); err != nil {
		return nil, mapMongoError(err)
	}
	return doc.toDomain(), nil
}

func (r *mongoTicketRepository) Delete(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return mapMongoError(err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoTicketRepository) findOne(ctx context.Context, filter bson.D) (*domain.Ticket, error) {
	var doc ticketDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapMongoError(err)
	}
	return doc.toDomain(), nil
}

func ticketListFilter(filter TicketFilter) bson.D {
	query := bson.D{}
	if filter.OwnerID != nil {
		query = append(query, bson.E{Key: "owner_id", Value: *filter.OwnerID})
	}
	if len(filter.Statuses) > 0 {
		statuses := make(bson.A, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		query = append(query, bson.E{Key: "status", Value: bson.D{{Key: "$in", Value: statuses}}})
	}
	return query
}

func ticketListOptions(filter TicketFilter) *options.FindOptionsBuilder {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	return opts
}
