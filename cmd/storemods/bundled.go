package main

// Modules compiled into the storemods binary.
import (
	_ "github.com/flemzord/storemods/modules/design/classic"
	_ "github.com/flemzord/storemods/modules/payment/bankwire"
	_ "github.com/flemzord/storemods/modules/shipping/flatrate"
)
