package main

import (
	"log"
	"time"

	"github.com/anoixa/image-resizer/cmd"
	"github.com/anoixa/image-resizer/config"
)

func init() {
	var cstZone = time.FixedZone("CST", 8*3600) // 东八
	time.Local = cstZone
}

func main() {
	log.Printf("image resizer %s (%s)", config.Version, config.CommitHash)
	cmd.Execute()
}
