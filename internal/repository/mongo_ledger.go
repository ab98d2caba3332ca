package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iliyamo/venue-seat-hold/internal/model"
)

const (
	layoutCollection   = "layout"
	holdsCollection    = "seat_holds"
	bookingsCollection = "bookings"
	activeLayoutDocID  = "active"
)

// errRollback aborts a Mongo transaction for a business failure without
// surfacing an error to the caller.
var errRollback = errors.New("rollback")

// MongoLedger implements Ledger on MongoDB.  Multi-document transactions
// need a replica set; per-seat exclusion comes from the unique index on
// seat_holds (row, col) and the unique multikey index on bookings.seats.
type MongoLedger struct {
	client   *mongo.Client
	layout   *mongo.Collection
	holds    *mongo.Collection
	bookings *mongo.Collection
}

type layoutDoc struct {
	ID   string `bson:"_id"`
	Rows int    `bson:"rows"`
	Cols int    `bson:"cols"`
}

type seatDoc struct {
	Row int `bson:"row"`
	Col int `bson:"col"`
}

type holdDoc struct {
	Row       int       `bson:"row"`
	Col       int       `bson:"col"`
	UserID    string    `bson:"userId"`
	ExpiresAt time.Time `bson:"expiresAt"`
}

type bookingDoc struct {
	UserID   string    `bson:"userId"`
	Seats    []seatDoc `bson:"seats"`
	BookedAt time.Time `bson:"bookedAt"`
}

// NewMongoLedger binds the ledger to the named database.
func NewMongoLedger(client *mongo.Client, dbName string) *MongoLedger {
	db := client.Database(dbName)
	return &MongoLedger{
		client:   client,
		layout:   db.Collection(layoutCollection),
		holds:    db.Collection(holdsCollection),
		bookings: db.Collection(bookingsCollection),
	}
}

// EnsureIndexes creates the indexes the ledger relies on.  The TTL index on
// expiresAt only lets the server drop long-dead holds in the background;
// correctness never depends on it.
func (l *MongoLedger) EnsureIndexes(ctx context.Context) error {
	if _, err := l.holds.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "row", Value: 1}, {Key: "col", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}}},
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	}); err != nil {
		return fmt.Errorf("seat_holds indexes: %w", err)
	}
	if _, err := l.bookings.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "seats", Value: 1}}, Options: options.Index().SetUnique(true)},
	}); err != nil {
		return fmt.Errorf("bookings indexes: %w", err)
	}
	return nil
}

// WithTx runs fn inside a session transaction.  The driver retries
// transient transaction errors on its own; EndSession runs on every path.
func (l *MongoLedger) WithTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) (bool, error)) (bool, error) {
	sess, err := l.client.StartSession()
	if err != nil {
		return false, fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		ok, err := fn(sc, &mongoTx{l: l})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errRollback
		}
		return nil, nil
	})
	if errors.Is(err, errRollback) {
		return false, nil
	}
	if err != nil {
		return false, classifyTxError(err)
	}
	return true, nil
}

// Snapshot reads the three collections one after another outside a
// transaction.
func (l *MongoLedger) Snapshot(ctx context.Context, now time.Time) (model.Snapshot, error) {
	snap := model.Snapshot{TakenAt: now}
	layout, ok, err := findLayout(ctx, l.layout)
	if err != nil {
		return snap, fmt.Errorf("load layout: %w", err)
	}
	if !ok {
		return snap, nil
	}
	snap.Layout, snap.HasLayout = layout, true

	cur, err := l.holds.Find(ctx, bson.M{"expiresAt": bson.M{"$gt": now.UTC()}})
	if err != nil {
		return snap, fmt.Errorf("load holds: %w", err)
	}
	var holds []holdDoc
	if err := cur.All(ctx, &holds); err != nil {
		return snap, fmt.Errorf("decode holds: %w", err)
	}
	for _, h := range holds {
		snap.Holds = append(snap.Holds, model.SeatHold{
			Seat:      model.Seat{Row: h.Row, Col: h.Col},
			UserID:    h.UserID,
			ExpiresAt: h.ExpiresAt,
		})
	}

	cur, err = l.bookings.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"seats": 1, "_id": 0}))
	if err != nil {
		return snap, fmt.Errorf("load bookings: %w", err)
	}
	var bookings []bookingDoc
	if err := cur.All(ctx, &bookings); err != nil {
		return snap, fmt.Errorf("decode bookings: %w", err)
	}
	for _, b := range bookings {
		for _, s := range b.Seats {
			snap.Booked = append(snap.Booked, model.Seat{Row: s.Row, Col: s.Col})
		}
	}
	return snap, nil
}

func findLayout(ctx context.Context, coll *mongo.Collection) (model.Layout, bool, error) {
	var doc layoutDoc
	err := coll.FindOne(ctx, bson.M{"_id": activeLayoutDocID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Layout{}, false, nil
	}
	if err != nil {
		return model.Layout{}, false, err
	}
	return model.Layout{Rows: doc.Rows, Cols: doc.Cols}, true, nil
}

// seatFilters builds an $or clause matching any of the seats.
func seatFilters(seats []model.Seat) bson.A {
	or := make(bson.A, 0, len(seats))
	for _, s := range seats {
		or = append(or, bson.M{"row": s.Row, "col": s.Col})
	}
	return or
}

// seatValues renders seats as ordered sub-documents so equality and
// $addToSet comparisons are stable.
func seatValues(seats []model.Seat) bson.A {
	out := make(bson.A, 0, len(seats))
	for _, s := range seats {
		out = append(out, bson.D{{Key: "row", Value: s.Row}, {Key: "col", Value: s.Col}})
	}
	return out
}

// mongoTx issues every call with the session context it receives.
type mongoTx struct {
	l *MongoLedger
}

func (t *mongoTx) Layout(ctx context.Context) (model.Layout, bool, error) {
	return findLayout(ctx, t.l.layout)
}

func (t *mongoTx) ReplaceLayout(ctx context.Context, layout model.Layout) error {
	_, err := t.l.layout.ReplaceOne(ctx,
		bson.M{"_id": activeLayoutDocID},
		layoutDoc{ID: activeLayoutDocID, Rows: layout.Rows, Cols: layout.Cols},
		options.Replace().SetUpsert(true),
	)
	return err
}

func (t *mongoTx) DeleteAllHolds(ctx context.Context) error {
	_, err := t.l.holds.DeleteMany(ctx, bson.M{})
	return err
}

func (t *mongoTx) DeleteAllBookings(ctx context.Context) error {
	_, err := t.l.bookings.DeleteMany(ctx, bson.M{})
	return err
}

func (t *mongoTx) AnyBooked(ctx context.Context, seats []model.Seat) (bool, error) {
	if len(seats) == 0 {
		return false, nil
	}
	n, err := t.l.bookings.CountDocuments(ctx, bson.M{"seats": bson.M{"$in": seatValues(seats)}})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *mongoTx) PurgeExpiredHolds(ctx context.Context, seat model.Seat, now time.Time) (int64, error) {
	res, err := t.l.holds.DeleteMany(ctx, bson.M{
		"row":       seat.Row,
		"col":       seat.Col,
		"expiresAt": bson.M{"$lte": now.UTC()},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (t *mongoTx) PurgeAllExpiredHolds(ctx context.Context, now time.Time) ([]model.Seat, error) {
	filter := bson.M{"expiresAt": bson.M{"$lte": now.UTC()}}
	cur, err := t.l.holds.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var dead []holdDoc
	if err := cur.All(ctx, &dead); err != nil {
		return nil, err
	}
	freed := make([]model.Seat, 0, len(dead))
	for _, h := range dead {
		freed = append(freed, model.Seat{Row: h.Row, Col: h.Col})
	}
	if len(freed) == 0 {
		return freed, nil
	}
	if _, err := t.l.holds.DeleteMany(ctx, filter); err != nil {
		return nil, err
	}
	sortSeats(freed)
	return freed, nil
}

func (t *mongoTx) InsertHold(ctx context.Context, hold model.SeatHold) (bool, error) {
	_, err := t.l.holds.InsertOne(ctx, holdDoc{
		Row:       hold.Seat.Row,
		Col:       hold.Seat.Col,
		UserID:    hold.UserID,
		ExpiresAt: hold.ExpiresAt.UTC(),
	})
	if err != nil {
		if isDuplicateKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (t *mongoTx) DeleteHold(ctx context.Context, seat model.Seat, userID string, now time.Time) (bool, error) {
	res, err := t.l.holds.DeleteOne(ctx, bson.M{
		"row":       seat.Row,
		"col":       seat.Col,
		"userId":    userID,
		"expiresAt": bson.M{"$gt": now.UTC()},
	})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (t *mongoTx) CountActiveHolds(ctx context.Context, seats []model.Seat, userID string, now time.Time) (int, error) {
	if len(seats) == 0 {
		return 0, nil
	}
	n, err := t.l.holds.CountDocuments(ctx, bson.M{
		"userId":    userID,
		"expiresAt": bson.M{"$gt": now.UTC()},
		"$or":       seatFilters(seats),
	})
	return int(n), err
}

func (t *mongoTx) DeleteHolds(ctx context.Context, seats []model.Seat, userID string) error {
	if len(seats) == 0 {
		return nil
	}
	_, err := t.l.holds.DeleteMany(ctx, bson.M{"userId": userID, "$or": seatFilters(seats)})
	return err
}

func (t *mongoTx) UpsertBooking(ctx context.Context, userID string, seats []model.Seat, now time.Time) (bool, error) {
	seats = dedupeSeats(seats)
	if len(seats) == 0 {
		return true, nil
	}
	_, err := t.l.bookings.UpdateOne(ctx,
		bson.M{"userId": userID},
		bson.M{
			"$addToSet":    bson.M{"seats": bson.M{"$each": seatValues(seats)}},
			"$setOnInsert": bson.M{"bookedAt": now.UTC()},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
