package main

import "github.com/mselser95/predict-trader/cmd"

func main() {
	cmd.Execute()
}
