package loader

import (
	"context"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mounirtms/gridcore/pkg/errors"
	"github.com/mounirtms/gridcore/pkg/logger"
	"github.com/mounirtms/gridcore/pkg/state"
)

// MongoConfig describes how a MongoLoader maps grid queries onto a
// collection.
type MongoConfig struct {
	// IDField is the stable sort tie-break field. Defaults to "_id".
	IDField string

	// SearchFields are the document fields matched by quick search.
	// Search queries fail validation when none are configured, since a
	// whole-document regex scan is not something we will send to the
	// server.
	SearchFields []string
}

// MongoLoader serves grid queries from a MongoDB collection, pushing
// filter, sort and pagination down as a Find with options.
type MongoLoader struct {
	coll *mongo.Collection
	cfg  MongoConfig
	log  *zap.Logger
}

// NewMongo builds a loader over an already connected collection.
func NewMongo(coll *mongo.Collection, cfg MongoConfig) (*MongoLoader, error) {
	if coll == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "mongo loader requires a collection")
	}
	if cfg.IDField == "" {
		cfg.IDField = "_id"
	}
	return &MongoLoader{
		coll: coll,
		cfg:  cfg,
		log:  logger.Get().Named("loader.mongo").With(zap.String("collection", coll.Name())),
	}, nil
}

// Load counts the filtered documents and fetches the requested page.
func (l *MongoLoader) Load(ctx context.Context, q Query) (Result, error) {
	if err := q.Validate(); err != nil {
		return Result{}, err
	}

	filter, err := l.buildFilter(q)
	if err != nil {
		return Result{}, err
	}

	total, err := l.coll.CountDocuments(ctx, filter)
	if err != nil {
		return Result{}, errors.Wrap(err, errors.ErrorTypeLoader, "count failed").
			WithDetail("collection", l.coll.Name())
	}

	findOpts := options.Find().
		SetSort(l.buildSort(q.Sort)).
		SetSkip(int64(q.Pagination.Page) * int64(q.Pagination.PageSize)).
		SetLimit(int64(q.Pagination.PageSize))

	start := time.Now()
	cursor, err := l.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return Result{}, errors.Wrap(err, errors.ErrorTypeLoader, "find failed").
			WithDetail("collection", l.coll.Name())
	}
	defer cursor.Close(ctx)

	var out []Row
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return Result{}, errors.Wrap(err, errors.ErrorTypeLoader, "decode failed")
		}
		out = append(out, rowFromDocument(doc))
	}
	if err := cursor.Err(); err != nil {
		return Result{}, errors.Wrap(err, errors.ErrorTypeLoader, "cursor iteration failed")
	}

	l.log.Debug("page loaded",
		zap.Int("rows", len(out)),
		zap.Int64("total", total),
		zap.Int("page", q.Pagination.Page),
		zap.Duration("elapsed", time.Since(start)))

	return Result{Rows: out, TotalCount: int(total)}, nil
}

func (l *MongoLoader) buildFilter(q Query) (bson.M, error) {
	var clauses []bson.M

	if len(q.Filter.Items) > 0 {
		items := make([]bson.M, 0, len(q.Filter.Items))
		for _, item := range q.Filter.Items {
			clause, err := mongoItemFilter(item)
			if err != nil {
				return nil, err
			}
			items = append(items, clause)
		}
		if q.Filter.Logic == state.FilterOr {
			clauses = append(clauses, bson.M{"$or": items})
		} else {
			clauses = append(clauses, bson.M{"$and": items})
		}
	}

	if term := q.Search; term != "" {
		if len(l.cfg.SearchFields) == 0 {
			return nil, errors.New(errors.ErrorTypeValidation, "search requires SearchFields on the mongo loader")
		}
		pattern := regexp.QuoteMeta(term)
		fields := make([]bson.M, len(l.cfg.SearchFields))
		for i, f := range l.cfg.SearchFields {
			fields[i] = bson.M{f: bson.M{"$regex": pattern, "$options": "i"}}
		}
		clauses = append(clauses, bson.M{"$or": fields})
	}

	switch len(clauses) {
	case 0:
		return bson.M{}, nil
	case 1:
		return clauses[0], nil
	default:
		return bson.M{"$and": clauses}, nil
	}
}

func mongoItemFilter(item state.FilterItem) (bson.M, error) {
	if item.Field == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "filter item missing field")
	}

	switch item.Operator {
	case state.OpContains:
		return regexFilter(item.Field, regexp.QuoteMeta(formatValue(item.Value))), nil
	case state.OpStartsWith:
		return regexFilter(item.Field, "^"+regexp.QuoteMeta(formatValue(item.Value))), nil
	case state.OpEndsWith:
		return regexFilter(item.Field, regexp.QuoteMeta(formatValue(item.Value))+"$"), nil
	case state.OpEquals:
		return bson.M{item.Field: item.Value}, nil
	case state.OpNotEquals:
		return bson.M{item.Field: bson.M{"$ne": item.Value}}, nil
	case state.OpIsEmpty:
		return bson.M{"$or": []bson.M{
			{item.Field: nil},
			{item.Field: ""},
			{item.Field: bson.M{"$exists": false}},
		}}, nil
	case state.OpIsNotEmpty:
		return bson.M{item.Field: bson.M{"$exists": true, "$nin": []interface{}{nil, ""}}}, nil
	case state.OpIsAnyOf:
		return bson.M{item.Field: bson.M{"$in": anySlice(item.Value)}}, nil
	case state.OpGt:
		return bson.M{item.Field: bson.M{"$gt": item.Value}}, nil
	case state.OpGte:
		return bson.M{item.Field: bson.M{"$gte": item.Value}}, nil
	case state.OpLt:
		return bson.M{item.Field: bson.M{"$lt": item.Value}}, nil
	case state.OpLte:
		return bson.M{item.Field: bson.M{"$lte": item.Value}}, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeValidation, "unsupported filter operator %q", item.Operator)
	}
}

func regexFilter(field, pattern string) bson.M {
	return bson.M{field: bson.M{"$regex": pattern, "$options": "i"}}
}

// buildSort keeps sort keys ordered and appends the id tie-break so
// page boundaries are stable.
func (l *MongoLoader) buildSort(model state.SortModel) bson.D {
	sort := make(bson.D, 0, len(model)+1)
	for _, item := range model {
		dir := 1
		if item.Direction == state.SortDesc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: item.Field, Value: dir})
	}
	return append(sort, bson.E{Key: l.cfg.IDField, Value: 1})
}

// rowFromDocument flattens driver types into the value set the rest of
// the grid understands.
func rowFromDocument(doc bson.M) Row {
	row := make(Row, len(doc))
	for k, v := range doc {
		row[k] = normalizeBSONValue(v)
	}
	return row
}

func normalizeBSONValue(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Decimal128:
		return t.String()
	case primitive.A:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalizeBSONValue(e)
		}
		return out
	case bson.M:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = normalizeBSONValue(e)
		}
		return out
	case bson.D:
		out := make(map[string]interface{}, len(t))
		for _, e := range t {
			out[e.Key] = normalizeBSONValue(e.Value)
		}
		return out
	default:
		return v
	}
}
