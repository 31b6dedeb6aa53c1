/*
Package codec implements the compact binary case-data format.

Data Structure Documentation

Varint

Integers are split into 7-bit groups, least significant group first. Every
byte except the last has its high bit clear. The last byte has its high bit
set and terminates the integer. A 32-bit value needs at most 5 bytes.

    0       -> 0x80
    127     -> 0xFF
    128     -> 0x00 0x81
    16384   -> 0x00 0x00 0x81

File

A file is a region count followed by that many region records.

    File layout:
    +------------------------+----------+---------+----------+
    | region count (varint)  | region 1 |   ...   | region n |
    +------------------------+----------+---------+----------+

Region

A region record is the numeric region id followed by four category
blocks in fixed order: confirmed, deaths, recovered, active.

    Region layout:
    +-------------+-----------+---------+-----------+--------+
    | id (varint) | confirmed |  deaths | recovered | active |
    +-------------+-----------+---------+-----------+--------+

    Category block:
    +--------------------------+------------------+-------+------------------+
    | axis length (varint)     | count 1 (varint) |  ...  | count n (varint) |
    +--------------------------+------------------+-------+------------------+

Every block of every region carries the same axis length. The dates of the
axis are not stored in the file.
*/
package codec
