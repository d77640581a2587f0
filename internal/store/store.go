// Package store is the persistence boundary for Room state, backed by
// MongoDB (go.mongodb.org/mongo-driver). It generalizes the db wrapper
// pattern seen across the retrieved corpus (a struct holding a *mongo.Client
// plus typed collection accessors) and provides the updateRoom-style
// optimistic-concurrency loop, Update: it reads the current version,
// applies a function, and writes back conditioned on that version,
// retrying on conflict. The engine does not go through Update; it calls
// Save directly on its in-memory room (see internal/engine persistLocked).
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/scrawlgame/scrawl-server/internal/model"
)

// ErrNotFound is returned by Load when no room with that id exists.
var ErrNotFound = errors.New("store: room not found")

// ErrVersionConflict is returned by Save when the room was modified by
// another writer between Load and Save.
var ErrVersionConflict = errors.New("store: version conflict")

// maxUpdateRetries bounds the optimistic-retry loop in Update.
const maxUpdateRetries = 3

// Store wraps the Mongo client and the single "rooms" collection every
// room document lives in.
type Store struct {
	client *mongo.Client
	rooms  *mongo.Collection
}

// Connect dials MongoDB at uri and pings it, mirroring the fail-fast
// startup behavior spec.md §7 requires: the only fatal startup condition
// is failure to bind the persistent store.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	log.Printf("[store] connected to mongodb database %q", dbName)
	return &Store{
		client: client,
		rooms:  client.Database(dbName).Collection("rooms"),
	}, nil
}

// Disconnect closes the underlying client, used on graceful shutdown.
func (s *Store) Disconnect(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Health reports whether the store can still reach MongoDB, for the
// /health endpoint's "database" field.
func (s *Store) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

// Load fetches a room document by id. Returns ErrNotFound if absent.
func (s *Store) Load(ctx context.Context, roomID string) (*model.Room, error) {
	var room model.Room
	err := s.rooms.FindOne(ctx, bson.M{"_id": roomID}).Decode(&room)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", roomID, err)
	}
	room.RebuildDerived()
	return &room, nil
}

// Insert writes a brand-new room document (createRoom path). The caller
// is responsible for setting Version to 0 first.
func (s *Store) Insert(ctx context.Context, room *model.Room) error {
	_, err := s.rooms.InsertOne(ctx, room)
	if err != nil {
		return fmt.Errorf("store: insert %s: %w", room.RoomID, err)
	}
	return nil
}

// Save writes back a room, conditioned on expectedVersion still being the
// stored version, and bumps the stored version by one on success. Returns
// ErrVersionConflict if another writer raced ahead.
func (s *Store) Save(ctx context.Context, room *model.Room, expectedVersion int64) error {
	newVersion := expectedVersion + 1
	room.Version = newVersion

	filter := bson.M{"_id": room.RoomID, "version": expectedVersion}
	result, err := s.rooms.ReplaceOne(ctx, filter, room)
	if err != nil {
		return fmt.Errorf("store: save %s: %w", room.RoomID, err)
	}
	if result.MatchedCount == 0 {
		room.Version = expectedVersion
		return ErrVersionConflict
	}
	return nil
}

// Delete removes a room document, used by the idle-room sweeper and
// explicit room teardown.
func (s *Store) Delete(ctx context.Context, roomID string) error {
	_, err := s.rooms.DeleteOne(ctx, bson.M{"_id": roomID})
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", roomID, err)
	}
	return nil
}

// ForEach loads every room document and invokes fn on each, stopping early
// if fn returns false. Used by the sweeper's idle scan (spec.md §4.4).
func (s *Store) ForEach(ctx context.Context, fn func(*model.Room) bool) error {
	cursor, err := s.rooms.Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("store: scan: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var room model.Room
		if err := cursor.Decode(&room); err != nil {
			log.Printf("[store] skipping undecodable room document: %v", err)
			continue
		}
		room.RebuildDerived()
		if !fn(&room) {
			break
		}
	}
	return cursor.Err()
}

// CountRooms returns the total number of room documents, for the
// /health "rooms.total" field.
func (s *Store) CountRooms(ctx context.Context) (int64, error) {
	n, err := s.rooms.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Update is the single entry point for mutating an existing room: it loads
// the current document, applies fn, and saves it back under optimistic
// concurrency control, retrying up to maxUpdateRetries times on a version
// conflict before giving up. fn returning an error aborts without writing.
func (s *Store) Update(ctx context.Context, roomID string, fn func(*model.Room) error) (*model.Room, error) {
	var lastErr error
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		room, err := s.Load(ctx, roomID)
		if err != nil {
			return nil, err
		}

		version := room.Version
		if err := fn(room); err != nil {
			return nil, err
		}

		if err := s.Save(ctx, room, version); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				lastErr = err
				log.Printf("[store] version conflict updating room %s, retrying (attempt %d)", roomID, attempt+1)
				continue
			}
			return nil, err
		}
		return room, nil
	}
	return nil, fmt.Errorf("store: update %s: %w after %d attempts", roomID, lastErr, maxUpdateRetries)
}
