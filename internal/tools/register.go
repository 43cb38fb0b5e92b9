package tools

import (
	"net/http"

	"github.com/clawdesk/clawbench/internal/vfs"
)

// RegisterAll builds the complete closed Tool Catalog registry against a
// single Virtual Filesystem store,'s tool list.
func RegisterAll(store vfs.Store, httpClient *http.Client) *Registry {
	reg := NewRegistry()
	RegisterFilesystemTools(reg, store)
	RegisterCatTool(reg, store)
	RegisterGrepTool(reg, store)
	RegisterGlobAndFindTools(reg, store)
	RegisterMemoryTools(reg, store)
	RegisterPlanTools(reg, store)
	RegisterWebTools(reg, httpClient)
	return reg
}
