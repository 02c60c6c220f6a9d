package plaid

import "github.com/Veraticus/tally/internal/importer"

// TransactionFetcher pulls statement rows from a Plaid item.
type TransactionFetcher = importer.Fetcher
