package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/mongo"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mounirtms/gridcore/pkg/cache"
	"github.com/mounirtms/gridcore/pkg/column"
	"github.com/mounirtms/gridcore/pkg/config"
	"github.com/mounirtms/gridcore/pkg/grid"
	"github.com/mounirtms/gridcore/pkg/loader"
	"github.com/mounirtms/gridcore/pkg/logger"
	"github.com/mounirtms/gridcore/pkg/state"
	"github.com/mounirtms/gridcore/pkg/storage"

	// SQL drivers for the demo command's --source sql path.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)

var version = "0.1.0"

// demoFlags collects the demo command's flag values.
type demoFlags struct {
	Grid       string
	Source     string
	File       string
	DSN        string
	Driver     string
	Table      string
	URI        string
	Database   string
	Collection string
	Columns    string
	IDColumn   string
	Rows       int
	Page       int
	PageSize   int
	Sort       string
	Filter     string
	Search     string
	Export     string
	CacheStats bool
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GRIDCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var configFile, logLevel, stateDir string

	root := &cobra.Command{
		Use:   "gridctl",
		Short: "gridctl - exercise and inspect gridcore grids",
		Long: `gridctl drives the gridcore engine from the command line. It can render
a grid page as a text table from sample data, a CSV file, a SQL table or a
MongoDB collection, inspect or reset the state persisted for a grid, and
run micro-benchmarks over the cache and the column pipeline.

Settings come from flags, GRIDCORE_* environment variables and an optional
gridcore.yaml tuning file, in that order of precedence.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(logger.Config{
				Level:       v.GetString("log-level"),
				Encoding:    "console",
				OutputPaths: []string{"stderr"},
			})
		},
	}

	root.PersistentFlags().StringVar(&configFile, "config", "gridcore.yaml", "Path to the tuning file; missing files fall back to defaults")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&stateDir, "state-dir", ".gridcore", "Directory holding persisted grid state")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("state-dir", root.PersistentFlags().Lookup("state-dir"))

	// Version command
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gridctl v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	// Demo command
	flags := demoFlags{}
	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Build a grid and print the current page as a text table",
		Long: `Build a grid over one of the supported sources and print the current page.
Sort, filter, search and pagination are applied through the same engine a
host application would drive, and the page travels through the query cache.

Examples:
  gridctl demo --rows 100 --sort price:desc --cache-stats
  gridctl demo --source csv --file orders.csv --search widget
  gridctl demo --source sql --driver pgx --dsn "$DSN" --table orders --columns id,sku,price
  gridctl demo --source mongo --uri "$URI" --database shop --collection orders --columns sku,price`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), v, flags)
		},
	}
	demoCmd.Flags().StringVar(&flags.Grid, "grid", "demo", "Grid name; namespaces the persisted state")
	demoCmd.Flags().StringVar(&flags.Source, "source", "sample", "Data source (sample, csv, sql, mongo)")
	demoCmd.Flags().StringVar(&flags.File, "file", "", "CSV file to load with --source csv")
	demoCmd.Flags().StringVar(&flags.DSN, "dsn", "", "Database DSN for --source sql")
	demoCmd.Flags().StringVar(&flags.Driver, "driver", "mysql", "SQL driver (mysql, pgx)")
	demoCmd.Flags().StringVar(&flags.Table, "table", "", "Table or view to read with --source sql")
	demoCmd.Flags().StringVar(&flags.URI, "uri", "", "Connection URI for --source mongo")
	demoCmd.Flags().StringVar(&flags.Database, "database", "", "Database name for --source mongo")
	demoCmd.Flags().StringVar(&flags.Collection, "collection", "", "Collection name for --source mongo")
	demoCmd.Flags().StringVar(&flags.Columns, "columns", "", "Comma-separated column list for sql and mongo sources")
	demoCmd.Flags().StringVar(&flags.IDColumn, "id-column", "id", "Stable row identity column for sql sources")
	demoCmd.Flags().IntVar(&flags.Rows, "rows", 50, "Sample dataset size with --source sample")
	demoCmd.Flags().IntVar(&flags.Page, "page", 0, "Page to show (0-based)")
	demoCmd.Flags().IntVar(&flags.PageSize, "page-size", 0, "Rows per page; 0 keeps the configured default")
	demoCmd.Flags().StringVar(&flags.Sort, "sort", "", "Sort spec, field:asc or field:desc; repeat fields with commas")
	demoCmd.Flags().StringVar(&flags.Filter, "filter", "", "Filter spec, field:operator:value (e.g. price:gt:10)")
	demoCmd.Flags().StringVar(&flags.Search, "search", "", "Quick search text")
	demoCmd.Flags().StringVar(&flags.Export, "export", "", "Also export the result (csv, json) to stdout")
	demoCmd.Flags().BoolVar(&flags.CacheStats, "cache-stats", false, "Print query cache counters after rendering")
	root.AddCommand(demoCmd)

	// State commands
	var stateGrid string
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the state persisted for a grid",
	}
	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the persisted state snapshot and column settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStateDump(v, stateGrid)
		},
	}
	dumpCmd.Flags().StringVarP(&stateGrid, "grid", "g", "", "Grid name (required)")
	_ = dumpCmd.MarkFlagRequired("grid")
	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the persisted state snapshot and column settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStateReset(v, stateGrid)
		},
	}
	resetCmd.Flags().StringVarP(&stateGrid, "grid", "g", "", "Grid name (required)")
	_ = resetCmd.MarkFlagRequired("grid")
	stateCmd.AddCommand(dumpCmd, resetCmd)
	root.AddCommand(stateCmd)

	// Bench command
	var benchRows, benchIters int
	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Run cache and column pipeline micro-benchmarks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(benchRows, benchIters)
		},
	}
	benchCmd.Flags().IntVar(&benchRows, "rows", 1000, "Dataset size the benchmarks operate on")
	benchCmd.Flags().IntVar(&benchIters, "iterations", 10000, "Iterations per benchmark")
	root.AddCommand(benchCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runDemo builds a grid over the selected source, applies the query
// flags and renders the committed page.
func runDemo(ctx context.Context, v *viper.Viper, flags demoFlags) error {
	cfg, err := config.LoadOrDefault(v.GetString("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := storage.NewFileStore(v.GetString("state-dir"))
	if err != nil {
		return fmt.Errorf("open state dir: %w", err)
	}

	opts := grid.Options{
		GridName: flags.Grid,
		Config:   cfg,
		Storage:  store,
	}

	cleanup := func() {}
	switch flags.Source {
	case "", "sample":
		opts.Columns = demoColumns()
		opts.Data = demoRows(flags.Rows)

	case "csv":
		if flags.File == "" {
			return fmt.Errorf("--file is required with --source csv")
		}
		cols, rows, err := readCSVRows(flags.File)
		if err != nil {
			return err
		}
		opts.Columns = cols
		opts.Data = rows

	case "sql":
		if flags.DSN == "" || flags.Table == "" || flags.Columns == "" {
			return fmt.Errorf("--dsn, --table and --columns are required with --source sql")
		}
		db, err := sql.Open(flags.Driver, flags.DSN)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		cleanup = func() { _ = db.Close() }

		fields := splitFields(flags.Columns)
		ld, err := loader.NewSQL(db, loader.SQLConfig{
			Table:    flags.Table,
			Columns:  fields,
			IDColumn: flags.IDColumn,
			Dialect:  dialectFor(flags.Driver),
		})
		if err != nil {
			cleanup()
			return err
		}
		opts.Columns = fieldDescriptors(fields)
		opts.Loader = ld
		opts.PaginationMode = grid.PaginationServer
		opts.GetRowID = rowIDField(flags.IDColumn)

	case "mongo":
		if flags.URI == "" || flags.Database == "" || flags.Collection == "" || flags.Columns == "" {
			return fmt.Errorf("--uri, --database, --collection and --columns are required with --source mongo")
		}
		client, err := mongo.Connect(ctx, mongoopts.Client().ApplyURI(flags.URI))
		if err != nil {
			return fmt.Errorf("connect to mongo: %w", err)
		}
		cleanup = func() { _ = client.Disconnect(context.Background()) }

		fields := splitFields(flags.Columns)
		coll := client.Database(flags.Database).Collection(flags.Collection)
		ld, err := loader.NewMongo(coll, loader.MongoConfig{SearchFields: fields})
		if err != nil {
			cleanup()
			return err
		}
		opts.Columns = fieldDescriptors(fields)
		opts.Loader = ld
		opts.PaginationMode = grid.PaginationServer
		opts.GetRowID = rowIDField("_id")

	default:
		return fmt.Errorf("unknown source %q (want sample, csv, sql or mongo)", flags.Source)
	}
	defer cleanup()

	if flags.PageSize > 0 {
		opts.DefaultPageSize = flags.PageSize
		opts.PageSizeOptions = []int{flags.PageSize}
	}

	g, err := grid.New(opts)
	if err != nil {
		return err
	}
	defer func() { _ = g.Close() }()

	if flags.Sort != "" {
		model, err := parseSort(flags.Sort)
		if err != nil {
			return err
		}
		if err := g.SetSort(ctx, model); err != nil {
			return err
		}
	}
	if flags.Filter != "" {
		f, err := parseFilter(flags.Filter)
		if err != nil {
			return err
		}
		if err := g.SetFilter(ctx, f); err != nil {
			return err
		}
	}
	if flags.Search != "" {
		if err := g.SetSearch(flags.Search); err != nil {
			return err
		}
		// Search commits after its debounce window.
		time.Sleep(cfg.Debounce.Search + 50*time.Millisecond)
	}
	if flags.Page > 0 {
		if err := g.SetPage(ctx, flags.Page); err != nil {
			return err
		}
	}

	renderTable(os.Stdout, g)

	if flags.CacheStats {
		s := g.CacheStats()
		fmt.Printf("\ncache: %d hits, %d misses, %d evictions, %d entries (%.0f%% hit rate)\n",
			s.Hits, s.Misses, s.Evictions, s.Entries, s.HitRate*100)
	}
	if flags.Export != "" {
		fmt.Println()
		return g.Export(os.Stdout, grid.ExportFormat(flags.Export))
	}
	return nil
}

// runStateDump prints the raw persisted snapshot and column settings of
// a grid. Both values are stored as JSON.
func runStateDump(v *viper.Viper, gridName string) error {
	store, err := storage.NewFileStore(v.GetString("state-dir"))
	if err != nil {
		return fmt.Errorf("open state dir: %w", err)
	}

	found := false
	if raw, err := store.Get(state.StateKey(gridName)); err == nil {
		fmt.Printf("state (%s):\n%s\n", state.StateKey(gridName), raw)
		found = true
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	if raw, err := store.Get(column.SettingsKey(gridName)); err == nil {
		fmt.Printf("columns (%s):\n%s\n", column.SettingsKey(gridName), raw)
		found = true
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	if !found {
		fmt.Printf("no persisted state for grid %q in %s\n", gridName, store.Dir())
	}
	return nil
}

// runStateReset deletes everything persisted for a grid.
func runStateReset(v *viper.Viper, gridName string) error {
	store, err := storage.NewFileStore(v.GetString("state-dir"))
	if err != nil {
		return fmt.Errorf("open state dir: %w", err)
	}

	if err := store.Delete(state.StateKey(gridName)); err != nil {
		return err
	}
	if err := store.Delete(column.SettingsKey(gridName)); err != nil {
		return err
	}
	fmt.Printf("cleared persisted state for grid %q\n", gridName)
	return nil
}

// runBench measures cache round-trips and column pipeline builds
// in-process and prints ns/op figures.
func runBench(rows, iterations int) error {
	if rows <= 0 || iterations <= 0 {
		return fmt.Errorf("--rows and --iterations must be positive")
	}

	dataset := demoRows(rows)
	pageSize := 25

	c := cache.New("bench", cache.Config{MaxEntries: 128})
	start := time.Now()
	for i := 0; i < iterations; i++ {
		q := loader.Query{
			Pagination: state.PaginationModel{Page: i % 64, PageSize: pageSize},
		}
		key := cache.Key(q)
		if _, ok := c.Get(key); !ok {
			page, total := loader.ApplyQuery(dataset, q, loader.EngineOptions{})
			c.Put(key, page, total)
		}
	}
	elapsed := time.Since(start)
	s := c.Stats()
	fmt.Printf("cache:    %d ops in %v (%d ns/op, %.1f%% hits, %d entries)\n",
		iterations, elapsed.Round(time.Millisecond),
		elapsed.Nanoseconds()/int64(iterations), s.HitRate*100, s.Entries)

	in := column.BuildInput{
		GridName:     "bench",
		Columns:      demoColumns(),
		RowNumber:    true,
		Capabilities: column.AllCapabilities(),
	}
	p := column.NewPipeline()
	start = time.Now()
	for i := 0; i < iterations; i++ {
		if _, err := p.Build(in); err != nil {
			return err
		}
	}
	elapsed = time.Since(start)
	fmt.Printf("pipeline: %d builds in %v (%d ns/op, %d columns)\n",
		iterations, elapsed.Round(time.Millisecond),
		elapsed.Nanoseconds()/int64(iterations), len(in.Columns)+1)
	return nil
}

// renderTable prints the committed page with the effective visible
// columns, using the same contained renderer hosts use.
func renderTable(out io.Writer, g *grid.Grid) {
	cols := g.VisibleColumns()
	rows := g.Rows()
	r := column.NewRenderer(func(err error) {
		logger.Get().Warn("cell render failed", zap.Error(err))
	})

	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = c.HeaderName
		if headers[i] == "" {
			headers[i] = c.Field
		}
	}
	fmt.Fprintln(w, strings.Join(headers, "\t"))

	for i, row := range rows {
		cells := make([]string, len(cols))
		for j, c := range cols {
			cell := r.SafeRender(g.Name(), c, column.CellParams{
				GridName: g.Name(),
				Field:    c.Field,
				Row:      row,
				RowIndex: i,
				Value:    row[c.Field],
			})
			cells[j] = cell.Text
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()

	p := g.Pagination()
	pages := (g.TotalCount() + p.PageSize - 1) / p.PageSize
	if pages == 0 {
		pages = 1
	}
	fmt.Fprintf(out, "\npage %d/%d, %d rows total, %d per page\n", p.Page+1, pages, g.TotalCount(), p.PageSize)
}

// demoColumns returns the column set of the built-in sample source.
func demoColumns() []column.Descriptor {
	return []column.Descriptor{
		{Field: "sku", HeaderName: "SKU"},
		{Field: "status", HeaderName: "Status", Type: column.TypeSingleSelect,
			ValueOptions: []column.Option{
				{Value: "open", Label: "Open"},
				{Value: "packed", Label: "Packed"},
				{Value: "shipped", Label: "Shipped"},
			}},
		{Field: "price", HeaderName: "Price", Type: column.TypeNumber,
			ValueFormatter: func(v interface{}) string { return fmt.Sprintf("$%v", v) }},
		{Field: "qty", HeaderName: "Qty", Type: column.TypeNumber},
		{Field: "createdAt", HeaderName: "Created"},
	}
}

// demoRows generates n deterministic sample orders.
func demoRows(n int) []loader.Row {
	statuses := []string{"open", "packed", "shipped"}
	rows := make([]loader.Row, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, loader.Row{
			"id":        fmt.Sprintf("ord-%04d", i),
			"sku":       fmt.Sprintf("SKU-%04d", i%40),
			"status":    statuses[i%len(statuses)],
			"price":     float64((i*13)%200) + 0.99,
			"qty":       1 + i%9,
			"createdAt": fmt.Sprintf("2024-%02d-%02d", 1+i%12, 1+i%28),
		})
	}
	return rows
}

// readCSVRows loads a CSV file as a client-mode dataset. The header row
// names the columns; a missing id column is synthesized from the row
// number. Numeric-looking cells are parsed so sorting compares numbers.
func readCSVRows(path string) ([]column.Descriptor, []loader.Row, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return nil, nil, fmt.Errorf("open csv: %w", err)
	}
	defer func() { _ = f.Close() }()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("csv file %s is empty", path)
	}

	header := records[0]
	cols := fieldDescriptors(header)

	hasID := false
	for _, h := range header {
		if h == "id" {
			hasID = true
			break
		}
	}

	rows := make([]loader.Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		row := make(loader.Row, len(header)+1)
		for j, h := range header {
			if j < len(rec) {
				row[h] = cellValue(rec[j])
			}
		}
		if !hasID {
			row["id"] = fmt.Sprintf("row-%d", i)
		}
		rows = append(rows, row)
	}
	return cols, rows, nil
}

func cellValue(s string) interface{} {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func fieldDescriptors(fields []string) []column.Descriptor {
	cols := make([]column.Descriptor, 0, len(fields))
	for _, f := range fields {
		cols = append(cols, column.Descriptor{Field: f, HeaderName: f})
	}
	return cols
}

func splitFields(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func rowIDField(field string) func(loader.Row) state.RowID {
	return func(row loader.Row) state.RowID {
		if v, ok := row[field]; ok {
			return state.RowID(fmt.Sprintf("%v", v))
		}
		return ""
	}
}

func dialectFor(driver string) loader.Dialect {
	if driver == "pgx" {
		return loader.DialectPostgres
	}
	return loader.DialectMySQL
}

// parseSort turns "price:desc,sku" into a sort model. A missing
// direction means ascending.
func parseSort(spec string) (state.SortModel, error) {
	var model state.SortModel
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, dir, hasDir := strings.Cut(part, ":")
		item := state.SortItem{Field: field, Direction: state.SortAsc}
		if hasDir {
			switch dir {
			case "asc":
			case "desc":
				item.Direction = state.SortDesc
			default:
				return nil, fmt.Errorf("unknown sort direction %q (want asc or desc)", dir)
			}
		}
		model = append(model, item)
	}
	if len(model) == 0 {
		return nil, fmt.Errorf("empty sort spec %q", spec)
	}
	return model, nil
}

// parseFilter turns "price:gt:10" into a single-item filter model.
func parseFilter(spec string) (state.FilterModel, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 {
		return state.FilterModel{}, fmt.Errorf("filter spec %q must be field:operator:value", spec)
	}
	item := state.FilterItem{Field: parts[0], Operator: filterOperator(parts[1])}
	if item.Operator == "" {
		return state.FilterModel{}, fmt.Errorf("unknown filter operator %q", parts[1])
	}
	if len(parts) == 3 {
		item.Value = cellValue(parts[2])
	}
	return state.FilterModel{Items: []state.FilterItem{item}, Logic: state.FilterAnd}, nil
}

func filterOperator(name string) string {
	switch name {
	case "contains":
		return state.OpContains
	case "eq", "equals":
		return state.OpEquals
	case "ne", "notEquals":
		return state.OpNotEquals
	case "startsWith":
		return state.OpStartsWith
	case "endsWith":
		return state.OpEndsWith
	case "isEmpty":
		return state.OpIsEmpty
	case "isNotEmpty":
		return state.OpIsNotEmpty
	case "gt":
		return state.OpGt
	case "gte":
		return state.OpGte
	case "lt":
		return state.OpLt
	case "lte":
		return state.OpLte
	default:
		return ""
	}
}
