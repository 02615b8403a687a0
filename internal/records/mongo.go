package records

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/keithlinneman/themehub/internal/xerrors"
)

// collection names match the ones the dashboard's data already lives in
const (
	collThemes   = "themes"
	collUsers    = "users"
	collWebsites = "websites"
)

type themeDoc struct {
	Website      string       `bson:"website"`
	CurrentTheme string       `bson:"currentTheme"`
	History      []historyDoc `bson:"history"`
	Version      int64        `bson:"version"`
	UpdatedAt    time.Time    `bson:"updatedAt"`
}

type historyDoc struct {
	Theme   string    `bson:"theme"`
	DateSet time.Time `bson:"dateSet"`
}

type userDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Name         string             `bson:"name"`
	Email        string             `bson:"email"`
	Phone        string             `bson:"phone"`
	PasswordHash string             `bson:"password"`
	Role         string             `bson:"role"`
	Status       string             `bson:"status"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

type websiteDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	Bucket    string             `bson:"bucket"`
	Domain    string             `bson:"domain"`
	Status    string             `bson:"status"`
	CreatedAt time.Time          `bson:"createdAt"`
}

// Mongo is a Store backed by MongoDB.
type Mongo struct {
	client   *mongo.Client
	themes   *mongo.Collection
	users    *mongo.Collection
	websites *mongo.Collection
}

var _ Store = (*Mongo)(nil)

// OpenMongo connects, pings and makes sure the unique indexes exist.
func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, xerrors.Wrap(err, "connect to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, xerrors.Wrap(err, "ping mongo")
	}
	db := client.Database(database)
	m := &Mongo{
		client:   client,
		themes:   db.Collection(collThemes),
		users:    db.Collection(collUsers),
		websites: db.Collection(collWebsites),
	}
	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	unique := func(field string) mongo.IndexModel {
		return mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}, Options: options.Index().SetUnique(true)}
	}
	for coll, idx := range map[*mongo.Collection]mongo.IndexModel{
		m.themes:   unique("website"),
		m.users:    unique("email"),
		m.websites: unique("bucket"),
	} {
		if _, err := coll.Indexes().CreateOne(ctx, idx); err != nil {
			return xerrors.Wrapf(err, "create unique index on %s", coll.Name())
		}
	}
	return nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	return xerrors.WithKind(xerrors.Wrap(m.client.Ping(ctx, readpref.Primary()), "ping mongo"), xerrors.KindUnavailable)
}

func (m *Mongo) Close(ctx context.Context) error {
	return xerrors.Wrap(m.client.Disconnect(ctx), "disconnect mongo")
}

// swapPipeline pushes the outgoing theme and sets the new one in a single
// update. On upsert there is no currentTheme yet, so the first history
// entry is the new theme itself.
func swapPipeline(theme string, at time.Time) mongo.Pipeline {
	lit := bson.D{{Key: "$literal", Value: theme}}
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "history", Value: bson.D{{Key: "$concatArrays", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$history", bson.A{}}}},
				bson.A{bson.D{
					{Key: "theme", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$currentTheme", lit}}}},
					{Key: "dateSet", Value: at},
				}},
			}}}},
			{Key: "currentTheme", Value: lit},
			{Key: "version", Value: bson.D{{Key: "$add", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$version", 0}}}, 1}}}},
			{Key: "updatedAt", Value: at},
		}}},
	}
}

func (m *Mongo) RecordSwap(ctx context.Context, website, theme string, at time.Time) (ThemeRecord, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc themeDoc
	var err error
	// two concurrent first swaps can both try to insert; the loser retries
	// as an update against the winner's document
	for attempt := 0; attempt < 2; attempt++ {
		err = m.themes.FindOneAndUpdate(ctx, bson.D{{Key: "website", Value: website}}, swapPipeline(theme, at), opts).Decode(&doc)
		if !mongo.IsDuplicateKeyError(err) {
			break
		}
	}
	if err != nil {
		return ThemeRecord{}, xerrors.Wrapf(err, "record theme swap for %s", website)
	}
	return doc.record(), nil
}

func (m *Mongo) GetTheme(ctx context.Context, website string) (ThemeRecord, error) {
	var doc themeDoc
	err := m.themes.FindOne(ctx, bson.D{{Key: "website", Value: website}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ThemeRecord{}, xerrors.NotFound("no theme record for website %q", website)
	}
	if err != nil {
		return ThemeRecord{}, xerrors.Wrapf(err, "load theme record for %s", website)
	}
	return doc.record(), nil
}

func (d themeDoc) record() ThemeRecord {
	r := ThemeRecord{
		Website:      d.Website,
		CurrentTheme: d.CurrentTheme,
		Version:      d.Version,
		UpdatedAt:    d.UpdatedAt.UTC(),
		History:      make([]HistoryEntry, len(d.History)),
	}
	for i, h := range d.History {
		r.History[i] = HistoryEntry{Theme: h.Theme, DateSet: h.DateSet.UTC()}
	}
	return r
}

func (d userDoc) user() User {
	return User{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Email:        d.Email,
		Phone:        d.Phone,
		PasswordHash: d.PasswordHash,
		Role:         d.Role,
		Status:       d.Status,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

// objectID parses a hex id; malformed ids cannot match anything.
func objectID(id, what string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, xerrors.NotFound("%s %s not found", what, id)
	}
	return oid, nil
}

func (m *Mongo) CreateUser(ctx context.Context, u User) (User, error) {
	doc := userDoc{
		ID:           primitive.NewObjectID(),
		Name:         u.Name,
		Email:        NormalizeEmail(u.Email),
		Phone:        u.Phone,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		Status:       u.Status,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	_, err := m.users.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return User{}, xerrors.Conflict("user %s already exists", doc.Email)
	}
	if err != nil {
		return User{}, xerrors.Wrapf(err, "insert user %s", doc.Email)
	}
	return doc.user(), nil
}

func (m *Mongo) findUser(ctx context.Context, filter bson.D, key string) (User, error) {
	var doc userDoc
	err := m.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, xerrors.NotFound("user %s not found", key)
	}
	if err != nil {
		return User{}, xerrors.Wrap(err, "load user")
	}
	return doc.user(), nil
}

func (m *Mongo) UserByID(ctx context.Context, id string) (User, error) {
	oid, err := objectID(id, "user")
	if err != nil {
		return User{}, err
	}
	return m.findUser(ctx, bson.D{{Key: "_id", Value: oid}}, id)
}

func (m *Mongo) UserByEmail(ctx context.Context, email string) (User, error) {
	email = NormalizeEmail(email)
	return m.findUser(ctx, bson.D{{Key: "email", Value: email}}, email)
}

func (m *Mongo) ListUsers(ctx context.Context) ([]User, error) {
	cur, err := m.users.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "email", Value: 1}}))
	if err != nil {
		return nil, xerrors.Wrap(err, "list users")
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, xerrors.Wrap(err, "decode users")
	}
	out := make([]User, len(docs))
	for i, d := range docs {
		out[i] = d.user()
	}
	return out, nil
}

func (m *Mongo) UpdateUser(ctx context.Context, id string, upd UserUpdate, at time.Time) (User, error) {
	oid, err := objectID(id, "user")
	if err != nil {
		return User{}, err
	}
	set := bson.D{{Key: "updatedAt", Value: at}}
	if upd.Name != "" {
		set = append(set, bson.E{Key: "name", Value: upd.Name})
	}
	if upd.Email != "" {
		set = append(set, bson.E{Key: "email", Value: NormalizeEmail(upd.Email)})
	}
	if upd.Phone != "" {
		set = append(set, bson.E{Key: "phone", Value: upd.Phone})
	}

	var doc userDoc
	err = m.users.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return User{}, xerrors.NotFound("user %s not found", id)
	case mongo.IsDuplicateKeyError(err):
		return User{}, xerrors.Conflict("user %s already exists", NormalizeEmail(upd.Email))
	case err != nil:
		return User{}, xerrors.Wrapf(err, "update user %s", id)
	}
	return doc.user(), nil
}

func (m *Mongo) SetPassword(ctx context.Context, id, hash string, at time.Time) error {
	oid, err := objectID(id, "user")
	if err != nil {
		return err
	}
	res, err := m.users.UpdateByID(ctx, oid, bson.D{{Key: "$set", Value: bson.D{
		{Key: "password", Value: hash},
		{Key: "updatedAt", Value: at},
	}}})
	if err != nil {
		return xerrors.Wrapf(err, "set password for %s", id)
	}
	if res.MatchedCount == 0 {
		return xerrors.NotFound("user %s not found", id)
	}
	return nil
}

func (m *Mongo) CountUsersByRole(ctx context.Context, role string) (int, error) {
	n, err := m.users.CountDocuments(ctx, bson.D{{Key: "role", Value: role}})
	return int(n), xerrors.Wrap(err, "count users")
}

func (d websiteDoc) website() Website {
	return Website{ID: d.ID.Hex(), Name: d.Name, Bucket: d.Bucket, Domain: d.Domain, Status: d.Status, CreatedAt: d.CreatedAt.UTC()}
}

func (m *Mongo) CreateWebsite(ctx context.Context, w Website) (Website, error) {
	doc := websiteDoc{ID: primitive.NewObjectID(), Name: w.Name, Bucket: w.Bucket, Domain: w.Domain, Status: w.Status, CreatedAt: w.CreatedAt}
	_, err := m.websites.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return Website{}, xerrors.Conflict("website for bucket %s already exists", w.Bucket)
	}
	if err != nil {
		return Website{}, xerrors.Wrapf(err, "insert website %s", w.Bucket)
	}
	return doc.website(), nil
}

func (m *Mongo) WebsiteByID(ctx context.Context, id string) (Website, error) {
	oid, err := objectID(id, "website")
	if err != nil {
		return Website{}, err
	}
	var doc websiteDoc
	err = m.websites.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Website{}, xerrors.NotFound("website %s not found", id)
	}
	if err != nil {
		return Website{}, xerrors.Wrap(err, "load website")
	}
	return doc.website(), nil
}

func (m *Mongo) ListWebsites(ctx context.Context) ([]Website, error) {
	cur, err := m.websites.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "bucket", Value: 1}}))
	if err != nil {
		return nil, xerrors.Wrap(err, "list websites")
	}
	var docs []websiteDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, xerrors.Wrap(err, "decode websites")
	}
	out := make([]Website, len(docs))
	for i, d := range docs {
		out[i] = d.website()
	}
	return out, nil
}

func (m *Mongo) DeleteWebsite(ctx context.Context, id string) error {
	oid, err := objectID(id, "website")
	if err != nil {
		return err
	}
	res, err := m.websites.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return xerrors.Wrapf(err, "delete website %s", id)
	}
	if res.DeletedCount == 0 {
		return xerrors.NotFound("website %s not found", id)
	}
	return nil
}
