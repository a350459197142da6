package main

// Blank imports register notifier factories via their init functions.
import (
	_ "github.com/zhuermu/zmead-sub004/internal/adapter/email"
	_ "github.com/zhuermu/zmead-sub004/internal/adapter/slack"
)
