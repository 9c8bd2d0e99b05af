package main

//go:generate swag init -g cmd/screener/main.go -o docs

// @title           Put Screener API
// @version         0.1.0
// @description     Price sync, metric calculation and cash-secured put screening.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
