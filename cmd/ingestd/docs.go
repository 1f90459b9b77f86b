package main

//go:generate swag init -g cmd/ingestd/main.go -o docs

// @title           TeamSync Ingestion API
// @version         0.1.0
// @description     Multi-tenant incremental ingestion for Slack, Linear, and GitHub.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
