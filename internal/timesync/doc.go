// Package timesync converts kernel tick counts to wall-clock time.
//
// The device reports time as FreeRTOS ticks since boot. With the tick rate
// (configTICK_RATE_HZ) and a chosen wall-clock anchor for tick 0, every tick
// maps to an absolute time, which is what span exporters need.
package timesync
