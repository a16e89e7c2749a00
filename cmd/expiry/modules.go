package main

// Compiled-in modules.
import (
	_ "github.com/flemzord/expiry/internal/expiry"
	_ "github.com/flemzord/expiry/internal/gateway"
	_ "github.com/flemzord/expiry/modules/store/memory"
	_ "github.com/flemzord/expiry/modules/store/sqlite"
)
