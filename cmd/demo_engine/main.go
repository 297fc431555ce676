package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreindex/storageengine/buffer"
	"github.com/coreindex/storageengine/common"
	"github.com/coreindex/storageengine/config"
	"github.com/coreindex/storageengine/index"
	"github.com/coreindex/storageengine/logger"
	"github.com/coreindex/storageengine/recovery"
	"github.com/coreindex/storageengine/storage/disk"
)

func int64Comparator(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func main() {
	cfg := config.Default()

	demoDir := "demo_engine_data"
	os.RemoveAll(demoDir)
	os.MkdirAll(demoDir, 0755)
	defer os.RemoveAll(demoDir)

	if err := logger.Init(logger.Config{LogLevel: cfg.LogLevel}); err != nil {
		fmt.Println("logger init failed:", err)
		return
	}

	fm, err := disk.NewFileManager(filepath.Join(demoDir, cfg.PageFilePath), filepath.Join(demoDir, cfg.LogFilePath), cfg.PageSize)
	if err != nil {
		logger.Logger.Fatalf("open disk manager: %v", err)
	}
	defer fm.Shutdown()

	logMgr := recovery.NewLogManager(fm, int(cfg.LogBufferSize), cfg.LogTimeout)
	if cfg.EnableLogging {
		logMgr.RunFlushThread()
		defer logMgr.StopFlushThread()
	}

	bpm := buffer.NewManager(fm, int(cfg.BufferPoolSize), cfg.PageSize)
	if cfg.EnableLogging {
		bpm.Log = logMgr
	}

	if err := index.EnsureHeaderPage(bpm); err != nil {
		logger.Logger.Fatalf("bootstrap header page: %v", err)
	}

	tree, err := index.NewBPlusTree(bpm, "demo", cfg.PageSize, int64Comparator)
	if err != nil {
		logger.Logger.Fatalf("open index: %v", err)
	}

	for i := int64(0); i < 1000; i++ {
		if _, err := tree.Insert(i, common.RID{PageID: common.PageID(i), SlotID: 0}); err != nil {
			logger.Logger.Fatalf("insert %d: %v", i, err)
		}
	}

	if rid, found, err := tree.Lookup(42); err != nil {
		logger.Logger.Fatalf("lookup: %v", err)
	} else {
		fmt.Printf("lookup(42) = %+v, found=%v\n", rid, found)
	}

	for i := int64(0); i < 1000; i += 3 {
		if err := tree.Delete(i); err != nil {
			logger.Logger.Fatalf("delete %d: %v", i, err)
		}
	}

	count := 0
	it, err := tree.Begin()
	if err != nil {
		logger.Logger.Fatalf("begin iteration: %v", err)
	}
	for it.Valid() {
		count++
		it.Next()
	}
	fmt.Printf("remaining entries after deletes: %d\n", count)

	if err := bpm.FlushAllPages(); err != nil {
		logger.Logger.Fatalf("flush pages: %v", err)
	}
}
