package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"quotedesk/internal/catalog"
	"quotedesk/internal/config"
	"quotedesk/internal/connectors"
	gmailconnector "quotedesk/internal/connectors/gmail"
	imapconnector "quotedesk/internal/connectors/imap"
	"quotedesk/internal/extract"
	"quotedesk/internal/listener"
	"quotedesk/internal/match"
	"quotedesk/internal/pipeline"
	"quotedesk/internal/quote"
	"quotedesk/internal/semantic"
	"quotedesk/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger, err := zap.NewProduction()
	must(err)
	defer logger.Sync()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	cmd := os.Args[1]
	switch cmd {
	case "account:upsert":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		email := fs.String("email", "", "sender address")
		name := fs.String("name", "", "display name")
		active := fs.Bool("active", true, "account enabled")
		quota := fs.Int("quota", cfg.DefaultDailyQuota, "daily message quota")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*email) == "" {
			must(fmt.Errorf("--email is required"))
		}
		account, err := db.UpsertAccount(*email, *name, *active, *quota)
		must(err)
		fmt.Printf("account upserted id=%d email=%s active=%v quota=%d\n", account.ID, account.Email, account.Active, account.DailyQuota)
	case "catalog:import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		accountID := fs.Int("accountId", 0, "account id")
		file := fs.String("file", "", "xlsx file with sku/name/price columns")
		_ = fs.Parse(os.Args[2:])
		if *accountID == 0 || strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--accountId and --file are required"))
		}
		importer := catalog.NewImporter(db, openSemanticStore(cfg, logger), logger)
		stats, err := importer.ImportProducts(context.Background(), *accountID, *file)
		must(err)
		fmt.Printf("catalog import done rows=%d loaded=%d skipped=%d\n", stats.Rows, stats.Loaded, stats.Skipped)
	case "xref:import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		accountID := fs.Int("accountId", 0, "account id")
		file := fs.String("file", "", "xlsx file with competitor_sku/catalog_sku columns")
		_ = fs.Parse(os.Args[2:])
		if *accountID == 0 || strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--accountId and --file are required"))
		}
		importer := catalog.NewImporter(db, nil, logger)
		stats, err := importer.ImportCrossReferences(*accountID, *file)
		must(err)
		fmt.Printf("xref import done rows=%d loaded=%d skipped=%d\n", stats.Rows, stats.Loaded, stats.Skipped)
	case "catalog:reindex":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		accountID := fs.Int("accountId", 0, "account id")
		_ = fs.Parse(os.Args[2:])
		if *accountID == 0 {
			must(fmt.Errorf("--accountId is required"))
		}
		store := openSemanticStore(cfg, logger)
		if store == nil {
			must(fmt.Errorf("vector store unavailable, check VECTOR_DIR and embedding settings"))
		}
		importer := catalog.NewImporter(db, store, logger)
		must(importer.Reindex(context.Background(), *accountID))
		fmt.Println("reindex done")
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "gmail", "gmail|imap")
		label := fs.String("label", "INBOX", "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])
		conn, err := makeConnector(cfg, *provider)
		must(err)
		svc := buildPipeline(db, cfg, logger)
		fetch := connectors.NewFetchService(conn, cfg.RawMailDir, svc, logger)
		result, err := fetch.FetchAndProcess(context.Background(), *label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d processed=%d duplicates=%d rejected=%d failed=%d\n",
			*provider, result.Fetched, result.Processed, result.Duplicates, result.Rejected, result.Failed)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "raw .eml file")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file is required"))
		}
		raw, err := os.ReadFile(*file)
		must(err)
		email, err := connectors.ParseRawEmail(raw)
		must(err)
		email.Provider = "file"
		svc := buildPipeline(db, cfg, logger)
		outcome, err := svc.ProcessInbound(context.Background(), email, file)
		must(err)
		if outcome.Quote != nil {
			fmt.Printf("processed decision=%s quote=%s items=%d\n", outcome.Decision, outcome.Quote.QuoteNumber, outcome.ItemCount)
		} else {
			fmt.Printf("processed decision=%s quote=none\n", outcome.Decision)
		}
	case "mail:listen":
		svc := buildPipeline(db, cfg, logger)
		s := listener.NewService(db, svc, cfg, logger)
		must(s.Run(context.Background()))
	case "match:quote":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		quoteID := fs.Int("quoteId", 0, "internal quote id")
		apply := fs.Bool("apply", false, "stamp the top candidate into each line item's metadata")
		_ = fs.Parse(os.Args[2:])
		if *quoteID == 0 {
			must(fmt.Errorf("--quoteId is required"))
		}
		svc := buildPipeline(db, cfg, logger)
		var matches []pipeline.LineMatches
		var err error
		if *apply {
			matches, err = svc.ApplyMatches(context.Background(), *quoteID)
		} else {
			matches, err = svc.MatchQuote(context.Background(), *quoteID)
		}
		must(err)
		encoded, err := json.MarshalIndent(matches, "", "  ")
		must(err)
		fmt.Println(string(encoded))
	case "quote:export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		quoteID := fs.Int("quoteId", 0, "internal quote id")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if *quoteID == 0 {
			must(fmt.Errorf("--quoteId is required"))
		}
		quoteRow, err := db.GetQuoteByID(*quoteID)
		must(err)
		if quoteRow == nil {
			must(fmt.Errorf("quote not found: id=%d", *quoteID))
		}
		items, err := db.ListQuoteLineItems(*quoteID)
		must(err)
		outputPath := strings.TrimSpace(*out)
		if outputPath == "" {
			outputPath = filepath.Join(cfg.OutputDir, quoteRow.QuoteNumber+".xlsx")
		}
		must(quote.ExportQuoteXLSX(*quoteRow, items, outputPath))
		fmt.Printf("exported quote %s to %s\n", quoteRow.QuoteNumber, outputPath)
	case "upload":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		accountID := fs.Int("accountId", 0, "account id")
		input := fs.String("input", "", "document to extract")
		_ = fs.Parse(os.Args[2:])
		if *accountID == 0 || strings.TrimSpace(*input) == "" {
			must(fmt.Errorf("--accountId and --input are required"))
		}
		content, err := os.ReadFile(*input)
		must(err)
		kind, ok := extract.ClassifyAttachment(filepath.Base(*input), "")
		if !ok {
			must(fmt.Errorf("unsupported document type: %s", *input))
		}
		svc := buildPipeline(db, cfg, logger)
		quoteRow, err := svc.ProcessUpload(context.Background(), *accountID, extract.DocumentPart{
			Kind:     kind,
			Filename: filepath.Base(*input),
			Content:  content,
		})
		must(err)
		fmt.Printf("upload done quote=%s total=%.2f\n", quoteRow.QuoteNumber, quoteRow.TotalAmount)
	default:
		usage()
		os.Exit(1)
	}
}

func buildPipeline(db *storage.DB, cfg config.Config, logger *zap.Logger) *pipeline.Service {
	extractor := extract.NewClient(cfg)
	var searcher match.SemanticSearcher
	if store := openSemanticStore(cfg, logger); store != nil {
		searcher = store
	}
	return pipeline.NewService(db, extractor, searcher, cfg, logger)
}

// openSemanticStore returns nil when the vector store cannot be opened; the
// matching engine then simply skips its semantic stage.
func openSemanticStore(cfg config.Config, logger *zap.Logger) *semantic.Store {
	store, err := semantic.OpenStore(cfg.VectorDir, semantic.NewHTTPEmbedder(cfg), logger)
	if err != nil {
		logger.Warn("vector store unavailable, semantic matching disabled", zap.Error(err))
		return nil
	}
	return store
}

func makeConnector(cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func usage() {
	fmt.Println("usage: quotedesk <command>")
	fmt.Println("commands:")
	fmt.Println("  account:upsert --email=... [--name=...] [--active=true] [--quota=100]")
	fmt.Println("  catalog:import --accountId=1 --file=./catalog.xlsx")
	fmt.Println("  xref:import --accountId=1 --file=./xrefs.xlsx")
	fmt.Println("  catalog:reindex --accountId=1")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process --file=./message.eml")
	fmt.Println("  mail:listen")
	fmt.Println("  match:quote --quoteId=1 [--apply]")
	fmt.Println("  quote:export --quoteId=1 [--out=./out/quote.xlsx]")
	fmt.Println("  upload --accountId=1 --input=./request.pdf")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
