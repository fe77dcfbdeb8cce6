// Package firestore implements the note and user stores on Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/harun/notemate/pkg/notes"
	"github.com/harun/notemate/pkg/users"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/oauth2"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	notesCollection  = "notes"
	usersCollection  = "users"
	emailsCollection = "user_emails"
)

// Store holds a Firestore client and exposes note and user stores over it.
type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore-backed store for projectID.
func NewStore(ctx context.Context, projectID string, opts ...option.ClientOption) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Notes returns the notes.Store view.
func (s *Store) Notes() *NoteStore {
	return &NoteStore{client: s.client}
}

// Users returns the users.Store view.
func (s *Store) Users() *UserStore {
	return &UserStore{client: s.client}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// Notes

type noteDoc struct {
	OwnerID   string    `firestore:"owner_id"`
	Content   string    `firestore:"content"`
	Status    string    `firestore:"status"`
	CreatedAt time.Time `firestore:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func (d noteDoc) toNote(id string) *notes.Note {
	return &notes.Note{
		ID:        id,
		OwnerID:   d.OwnerID,
		Content:   d.Content,
		Status:    notes.Status(d.Status),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// NoteStore implements notes.Store.
type NoteStore struct {
	client *firestore.Client
}

var _ notes.Store = (*NoteStore)(nil)

func (s *NoteStore) col() *firestore.CollectionRef {
	return s.client.Collection(notesCollection)
}

func (s *NoteStore) Create(ctx context.Context, ownerID, content string, st notes.Status) (*notes.Note, error) {
	content, err := notes.NormalizeContent(content)
	if err != nil {
		return nil, err
	}
	if st == "" {
		st = notes.StatusActive
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := noteDoc{
		OwnerID:   ownerID,
		Content:   content,
		Status:    string(st),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.col().Doc(id).Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("firestore CreateNote: %w", err)
	}
	return doc.toNote(id), nil
}

func (s *NoteStore) ListByOwner(ctx context.Context, ownerID string) ([]*notes.Note, error) {
	iter := s.col().Where("owner_id", "==", ownerID).OrderBy("created_at", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	out := []*notes.Note{}
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("firestore ListNotes: %w", err)
		}

		var doc noteDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode noteDoc: %w", err)
		}
		out = append(out, doc.toNote(snap.Ref.ID))
	}
	return out, nil
}

// loadOwned reads a note inside a transaction and checks ownership.
func loadOwned(tx *firestore.Transaction, ref *firestore.DocumentRef, ownerID string) (*noteDoc, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		if isNotFound(err) {
			return nil, notes.ErrNotFound
		}
		return nil, err
	}
	var doc noteDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode noteDoc: %w", err)
	}
	if doc.OwnerID != ownerID {
		return nil, notes.ErrNotFound
	}
	return &doc, nil
}

func (s *NoteStore) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	if id == "" {
		return false, nil
	}
	ref := s.col().Doc(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := loadOwned(tx, ref, ownerID); err != nil {
			return err
		}
		return tx.Delete(ref)
	})
	if errors.Is(err, notes.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("firestore DeleteNote: %w", err)
	}
	return true, nil
}

func (s *NoteStore) UpdateStatus(ctx context.Context, id, ownerID string, st notes.Status) (*notes.Note, error) {
	if id == "" {
		return nil, notes.ErrNotFound
	}
	ref := s.col().Doc(id)

	var updated *notes.Note
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := loadOwned(tx, ref, ownerID)
		if err != nil {
			return err
		}
		doc.Status = string(st)
		doc.UpdatedAt = time.Now().UTC()
		updated = doc.toNote(id)
		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: doc.Status},
			{Path: "updated_at", Value: doc.UpdatedAt},
		})
	})
	if errors.Is(err, notes.ErrNotFound) {
		return nil, notes.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("firestore UpdateNoteStatus: %w", err)
	}
	return updated, nil
}

// Users

type tokenDoc struct {
	AccessToken  string    `firestore:"access_token"`
	RefreshToken string    `firestore:"refresh_token"`
	TokenType    string    `firestore:"token_type"`
	Expiry       time.Time `firestore:"expiry"`
}

type userDoc struct {
	Name         string    `firestore:"name"`
	Email        string    `firestore:"email"`
	PasswordHash string    `firestore:"password_hash"`
	GoogleID     string    `firestore:"google_id"`
	GoogleToken  *tokenDoc `firestore:"google_token"`
	CreatedAt    time.Time `firestore:"created_at"`
	UpdatedAt    time.Time `firestore:"updated_at"`
}

type emailDoc struct {
	UserID string `firestore:"user_id"`
}

func (d userDoc) toUser(id string) *users.User {
	u := &users.User{
		ID:           id,
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		GoogleID:     d.GoogleID,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if d.GoogleToken != nil {
		u.GoogleToken = &oauth2.Token{
			AccessToken:  d.GoogleToken.AccessToken,
			RefreshToken: d.GoogleToken.RefreshToken,
			TokenType:    d.GoogleToken.TokenType,
			Expiry:       d.GoogleToken.Expiry,
		}
	}
	return u
}

func toTokenDoc(tok *oauth2.Token) *tokenDoc {
	if tok == nil {
		return nil
	}
	return &tokenDoc{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
}

// UserStore implements users.Store. Email uniqueness is enforced with a
// user_emails document keyed by the normalized address.
type UserStore struct {
	client *firestore.Client
}

var _ users.Store = (*UserStore)(nil)

func (s *UserStore) Create(ctx context.Context, u *users.User) error {
	id, err := gonanoid.New()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	email := users.NormalizeEmail(u.Email)
	doc := userDoc{
		Name:         u.Name,
		Email:        email,
		PasswordHash: u.PasswordHash,
		GoogleID:     u.GoogleID,
		GoogleToken:  toTokenDoc(u.GoogleToken),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	userRef := s.client.Collection(usersCollection).Doc(id)
	emailRef := s.client.Collection(emailsCollection).Doc(email)

	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(emailRef); err == nil {
			return users.ErrEmailTaken
		} else if !isNotFound(err) {
			return err
		}
		if err := tx.Create(emailRef, emailDoc{UserID: id}); err != nil {
			return err
		}
		return tx.Create(userRef, doc)
	})
	if errors.Is(err, users.ErrEmailTaken) || status.Code(err) == codes.AlreadyExists {
		return users.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("firestore CreateUser: %w", err)
	}

	u.ID = id
	u.Email = email
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*users.User, error) {
	if id == "" {
		return nil, users.ErrNotFound
	}
	snap, err := s.client.Collection(usersCollection).Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("firestore GetUser: %w", err)
	}

	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode userDoc: %w", err)
	}
	return doc.toUser(id), nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	email = users.NormalizeEmail(email)
	if email == "" {
		return nil, users.ErrNotFound
	}
	snap, err := s.client.Collection(emailsCollection).Doc(email).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("firestore GetUserByEmail: %w", err)
	}

	var doc emailDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode emailDoc: %w", err)
	}
	return s.GetByID(ctx, doc.UserID)
}

func (s *UserStore) SaveGoogleToken(ctx context.Context, id, googleID string, token *oauth2.Token) error {
	ref := s.client.Collection(usersCollection).Doc(id)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return users.ErrNotFound
			}
			return err
		}
		var doc userDoc
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode userDoc: %w", err)
		}

		next := toTokenDoc(token)
		if next != nil && next.RefreshToken == "" && doc.GoogleToken != nil {
			next.RefreshToken = doc.GoogleToken.RefreshToken
		}

		return tx.Update(ref, []firestore.Update{
			{Path: "google_id", Value: googleID},
			{Path: "google_token", Value: next},
			{Path: "updated_at", Value: time.Now().UTC()},
		})
	})
	if errors.Is(err, users.ErrNotFound) {
		return users.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("firestore SaveGoogleToken: %w", err)
	}
	return nil
}
