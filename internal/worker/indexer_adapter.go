package worker

import (
	"github.com/adawatch/adasync/internal/indexer"
)

// clientIndexer adapts *indexer.Client to the Indexer capability; the
// concrete pager type narrows to the Pager interface.
type clientIndexer struct {
	*indexer.Client
}

func (c clientIndexer) ListTxHashes(address string, fromBlock int64) Pager {
	return c.Client.ListTxHashes(address, fromBlock)
}

// WrapClient exposes an indexer client as the worker's Indexer capability.
func WrapClient(c *indexer.Client) Indexer {
	return clientIndexer{c}
}

var _ Indexer = clientIndexer{}
